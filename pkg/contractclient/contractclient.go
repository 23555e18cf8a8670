// Package contractclient provides a small ABI-driven wrapper over
// go-ethereum's ethclient for calling and sending transactions to a single
// contract address, without requiring generated (abigen) bindings for every
// contract the agent touches (the Aave data provider, lending pool, price
// oracle, and liquidator wrapper all speak through the same shape of call).
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthBackend is the subset of *ethclient.Client this package depends on, so
// tests can substitute a fake node.
type EthBackend interface {
	ethereum.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

var _ EthBackend = (*ethclient.Client)(nil)

// ContractClient reads from and writes to a single contract address using a
// loaded ABI.
type ContractClient struct {
	client  EthBackend
	address common.Address
	abi     *abi.ABI
}

// New binds a ContractClient to address using abi for encode/decode.
func New(client EthBackend, address common.Address, contractABI *abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

// ContractAddress returns the bound contract address.
func (c *ContractClient) ContractAddress() common.Address {
	return c.address
}

// Abi exposes the bound ABI for callers that need to pack/unpack calldata
// directly, e.g. to build multicall payloads.
func (c *ContractClient) Abi() *abi.ABI {
	return c.abi
}

// Call performs a read-only contract call and returns the decoded outputs
// in declaration order.
func (c *ContractClient) Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if from != nil {
		msg.From = *from
	}

	output, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	return c.abi.Unpack(method, output)
}

// PendingNonce returns from's next unmined nonce, the value a caller that
// needs to reuse the same nonce across several signed transactions (e.g. a
// mempool replace-by-fee race) must capture once and pass to every SendAt
// call for that race.
func (c *ContractClient) PendingNonce(ctx context.Context, from common.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("nonce for %s: %w", from.Hex(), err)
	}
	return nonce, nil
}

// Send signs and submits a write transaction at from's current pending
// nonce, estimating gas and the current gas price whenever the caller does
// not pin them.
func (c *ContractClient) Send(
	ctx context.Context,
	txType TxType,
	gasLimit *uint64,
	gasPrice *big.Int,
	from common.Address,
	privateKey *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, error) {
	nonce, err := c.PendingNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendAt(ctx, txType, gasLimit, gasPrice, nonce, from, privateKey, method, args...)
}

// SendAt signs and submits a write transaction at an explicitly chosen
// nonce, so a caller can rebroadcast the same logical transaction at a
// bumped gas price without the nonce drifting forward between attempts
// (only the highest-fee transaction at a given nonce is ever mined).
func (c *ContractClient) SendAt(
	ctx context.Context,
	txType TxType,
	gasLimit *uint64,
	gasPrice *big.Int,
	nonce uint64,
	from common.Address,
	privateKey *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	if gasPrice == nil {
		gasPrice, err = c.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		limit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{
			From: from, To: &c.address, GasPrice: gasPrice, Data: input,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
	}

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}

	var tx *types.Transaction
	switch txType {
	case DynamicFee:
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			To:        &c.address,
			Gas:       limit,
			GasFeeCap: gasPrice,
			GasTipCap: gasPrice,
			Data:      input,
		})
	default:
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &c.address,
			Gas:      limit,
			GasPrice: gasPrice,
			Data:     input,
		})
	}

	signer := types.LatestSignerForChainID(chainID)
	signedTx, err := types.SignTx(tx, signer, privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

// DecodedTransaction is the result of decoding a transaction's calldata
// against the bound ABI.
type DecodedTransaction struct {
	MethodName string
	Parameters map[string]interface{}
}

// DecodeTransaction decodes raw calldata using the bound ABI's method
// registry, matching on the 4-byte selector.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}

	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown selector %x: %w", data[:4], err)
	}

	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	return &DecodedTransaction{MethodName: method.Name, Parameters: params}, nil
}

// TransactionData fetches a mined transaction's calldata by hash.
func (c *ContractClient) TransactionData(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

// Receipt fetches a transaction's receipt and trims it to the fields the
// rest of the codebase needs.
func (c *ContractClient) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	r, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	return &Receipt{
		TxHash:            hash.Hex(),
		Status:            r.Status,
		BlockNumber:       r.BlockNumber.Uint64(),
		GasUsed:           fmt.Sprintf("0x%x", r.GasUsed),
		EffectiveGasPrice: fmt.Sprintf("0x%x", r.EffectiveGasPrice),
	}, nil
}

// PublicKeyToAddress derives the signer address for a private key, the way
// the teacher's bootstrap code derives its own wallet address before
// logging it.
func PublicKeyToAddress(pk *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(pk.PublicKey)
}
