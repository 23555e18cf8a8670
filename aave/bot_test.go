package aave

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidationbot/pkg/contractclient"
	"liquidationbot/pkg/watchlist"
)

// fakeSubmitter records the single call Submit makes so the test can assert
// the wrapper was invoked with the expected method/args shape.
type fakeSubmitter struct {
	lastMethod string
	lastArgs   []interface{}
	lastNonce  uint64
	hash       common.Hash
}

func (f *fakeSubmitter) PendingNonce(ctx context.Context, from common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeSubmitter) SendAt(ctx context.Context, txType contractclient.TxType, gasLimit *uint64, gasPrice *big.Int, nonce uint64, from common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	f.lastMethod = method
	f.lastArgs = args
	f.lastNonce = nonce
	return f.hash, nil
}

// balanceReader answers balanceOf for whichever token address it is bound
// to by the Bot's tokenClient factory.
type balanceReader struct {
	balances map[common.Address]*big.Int
}

func (b *balanceReader) Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	borrower := args[0].(common.Address)
	return []interface{}{b.balances[borrower]}, nil
}

func TestBotLiquidateBuildsAndSubmitsPlanForBreachedAccount(t *testing.T) {
	reserve := common.HexToAddress("0x1111")
	borrower := common.HexToAddress("0x9999")
	aToken := common.HexToAddress("0xa1")
	debtToken := common.HexToAddress("0xd1")

	catalogReader := &fakeReserveReader{
		configData: map[common.Address][]interface{}{
			reserve: {big.NewInt(18), big.NewInt(0), big.NewInt(8000), big.NewInt(10500)},
		},
		tokenData: map[common.Address][]interface{}{
			reserve: {aToken, common.Address{}, debtToken},
		},
		priceData: map[common.Address][]interface{}{
			reserve: {big.NewInt(1_000_000_000_000_000_000)},
		},
		fail: map[common.Address]bool{},
	}

	pool := &poolReader{healthFactor: big.NewInt(900_000_000_000_000_000)}

	debtBalances := &balanceReader{balances: map[common.Address]*big.Int{borrower: big.NewInt(1_000_000_000_000_000_000)}}
	collBalances := &balanceReader{balances: map[common.Address]*big.Int{borrower: big.NewInt(2_000_000_000_000_000_000)}}

	submitter := &fakeSubmitter{hash: common.HexToHash("0xbeef")}
	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := watchlist.NewMemStore()

	bot := NewBot(BotConfig{
		LendingPool:         pool,
		DataProvider:        catalogReader,
		PriceOracle:         catalogReader,
		LiquidatorSubmitter: submitter,
		Store:               store,
		Reserves:            []common.Address{reserve},
		FromAddress:         contractclient.PublicKeyToAddress(privateKey),
		PrivateKey:          privateKey,
		TrackedCap:          10,
		FanoutWidth:         4,
		TokenClient: func(token common.Address) ReserveReader {
			if token == debtToken {
				return debtBalances
			}
			return collBalances
		},
	})

	require.NoError(t, bot.Catalog.LoadAll(context.Background()))

	bot.liquidate(context.Background(), borrower)

	assert.Equal(t, "liquidate", submitter.lastMethod)
	require.Len(t, submitter.lastArgs, 5)
	assert.Equal(t, borrower, submitter.lastArgs[0])
	assert.Equal(t, uint64(7), submitter.lastNonce)
}

type poolReader struct {
	healthFactor *big.Int
}

func (p *poolReader) Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return []interface{}{
		big.NewInt(5_000_000_000_000_000_000),
		big.NewInt(1_000_000_000_000_000_000),
		big.NewInt(0),
		big.NewInt(8000),
		big.NewInt(8000),
		p.healthFactor,
	}, nil
}
