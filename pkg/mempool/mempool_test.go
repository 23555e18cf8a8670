package mempool

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Keep the watch loop's polling fast and its hard timeout short so
	// tests don't wait on the production 30s/1s defaults.
	raceTimeout = 300 * time.Millisecond
	pollInterval = 10 * time.Millisecond
}

type fakeSub struct {
	errCh chan error
}

func (f *fakeSub) Unsubscribe() {}
func (f *fakeSub) Err() <-chan error { return f.errCh }

type fakeSource struct {
	ch chan<- *types.Transaction
}

func (f *fakeSource) SubscribeFullPendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	f.ch = ch
	return &fakeSub{errCh: make(chan error)}, nil
}

// fakeReceipts answers TransactionReceipt from a map of canned outcomes,
// defaulting to ethereum.NotFound (not yet mined) for any unseeded hash.
type fakeReceipts struct {
	mu       sync.Mutex
	statuses map[common.Hash]uint64
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{statuses: make(map[common.Hash]uint64)}
}

func (f *fakeReceipts) set(hash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[hash] = status
}

func (f *fakeReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: status}, nil
}

func borrowerCalldata(borrower common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[4+12:], borrower.Bytes())
	return data
}

func TestHandleBumpsGasOnCompetitorMatch(t *testing.T) {
	source := &fakeSource{}
	w := New(source, nil, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	var bumped *big.Int
	resubmitted := make(chan struct{}, 1)
	w.Track(&Race{
		Borrower:    borrower,
		GasPriceWei: big.NewInt(100),
		InitialHash: common.HexToHash("0x01"),
		Resubmit: func(ctx context.Context, gasPriceWei *big.Int) (common.Hash, error) {
			bumped = gasPriceWei
			resubmitted <- struct{}{}
			return common.HexToHash("0xdeadbeef"), nil
		},
	})

	var bumpCount int
	w.OnGasBump(func() { bumpCount++ })

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(200),
		Gas:      21000,
		Data:     borrowerCalldata(borrower),
	})

	w.handle(context.Background(), tx)

	select {
	case <-resubmitted:
	case <-time.After(time.Second):
		t.Fatal("expected resubmission on competitor match")
	}

	require.NotNil(t, bumped)
	assert.Equal(t, big.NewInt(220), bumped)
	assert.Equal(t, 1, bumpCount)
}

func TestHandleIgnoresUnrelatedTransaction(t *testing.T) {
	source := &fakeSource{}
	w := New(source, nil, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	called := false
	w.Track(&Race{
		Borrower:    borrower,
		GasPriceWei: big.NewInt(100),
		InitialHash: common.HexToHash("0x01"),
		Resubmit: func(ctx context.Context, gasPriceWei *big.Int) (common.Hash, error) {
			called = true
			return common.Hash{}, nil
		},
	})

	other := common.HexToAddress("0x000000000000000000000000000000000000bb")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(200),
		Gas:      21000,
		Data:     borrowerCalldata(other),
	})

	w.handle(context.Background(), tx)
	assert.False(t, called)
}

func TestHandleIgnoresOwnEchoedTransaction(t *testing.T) {
	source := &fakeSource{}

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ownAddr := crypto.PubkeyToAddress(key.PublicKey)

	chainID := big.NewInt(137)
	w := New(source, nil, ownAddr, chainID)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	called := false
	w.Track(&Race{
		Borrower:    borrower,
		GasPriceWei: big.NewInt(100),
		InitialHash: common.HexToHash("0x01"),
		Resubmit: func(ctx context.Context, gasPriceWei *big.Int) (common.Hash, error) {
			called = true
			return common.Hash{}, nil
		},
	})

	signer := types.LatestSignerForChainID(chainID)
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(200),
		Gas:      21000,
		Data:     borrowerCalldata(borrower),
	})
	require.NoError(t, err)

	w.handle(context.Background(), tx)
	assert.False(t, called, "should not react to our own resubmission echoed back through the feed")
}

func TestTrackSeedsEditedHashesWithInitialSubmission(t *testing.T) {
	source := &fakeSource{}
	receipts := newFakeReceipts()
	w := New(source, receipts, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	initial := common.HexToHash("0x01")
	race := &Race{Borrower: borrower, GasPriceWei: big.NewInt(100), InitialHash: initial}
	w.Track(race)

	assert.Contains(t, race.hashes, initial)
}

func TestWatchStopsOnConfirmation(t *testing.T) {
	source := &fakeSource{}
	receipts := newFakeReceipts()
	w := New(source, receipts, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	initial := common.HexToHash("0x01")
	w.Track(&Race{Borrower: borrower, GasPriceWei: big.NewInt(100), InitialHash: initial})

	receipts.set(initial, types.ReceiptStatusSuccessful)

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		_, stillTracked := w.races[borrower]
		return !stillTracked
	}, time.Second, 5*time.Millisecond, "race should stop once its transaction confirms")
}

func TestWatchStopsWhenEditedSetEmptiesOnFailure(t *testing.T) {
	source := &fakeSource{}
	receipts := newFakeReceipts()
	w := New(source, receipts, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	initial := common.HexToHash("0x01")
	w.Track(&Race{Borrower: borrower, GasPriceWei: big.NewInt(100), InitialHash: initial})

	receipts.set(initial, types.ReceiptStatusFailed)

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		_, stillTracked := w.races[borrower]
		return !stillTracked
	}, time.Second, 5*time.Millisecond, "race should stop once every edited hash has failed")
}

func TestWatchStopsOnHardTimeout(t *testing.T) {
	source := &fakeSource{}
	receipts := newFakeReceipts() // every hash reports NotFound forever
	w := New(source, receipts, common.Address{}, nil)

	borrower := common.HexToAddress("0x000000000000000000000000000000000000aa")
	w.Track(&Race{Borrower: borrower, GasPriceWei: big.NewInt(100), InitialHash: common.HexToHash("0x01")})

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		_, stillTracked := w.races[borrower]
		return !stillTracked
	}, 2*time.Second, 10*time.Millisecond, "race should stop once the hard timeout elapses")
}
