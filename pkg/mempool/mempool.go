// Package mempool watches pending transactions for competing liquidation
// attempts against a borrower the agent has already submitted a
// liquidation for, and races them by rebroadcasting the same nonce at a
// bumped gas price (replace-by-fee).
package mempool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"liquidationbot/internal/util"
)

// raceTimeout is the hard ceiling on how long a single race is followed
// before giving up on out-bidding a competitor, regardless of confirmation
// or failure. A var, not a const, so tests can shrink it.
var raceTimeout = 30 * time.Second

// pollInterval is how often an in-flight race's edited transactions are
// checked for confirmation or failure. A var, not a const, so tests can
// shrink it.
var pollInterval = time.Second

// PendingSource is the subset of gethclient.Client this package depends
// on, so tests can substitute a fake feed instead of dialing a real node.
type PendingSource interface {
	SubscribeFullPendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error)
}

var _ PendingSource = (*gethclient.Client)(nil)

// ReceiptFetcher is the subset of an RPC client this package needs to poll
// a submitted transaction's mining outcome. Satisfied directly by
// *ethclient.Client.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Resubmitter issues the replace-by-fee retransmission once a competitor
// is detected, reusing the original transaction's nonce. The Liquidator
// supplies a closure over contractclient.ContractClient's SendAt bound to
// that nonce, kept narrow here so this package does not import it directly.
type Resubmitter func(ctx context.Context, gasPriceWei *big.Int) (common.Hash, error)

// Race tracks one in-flight liquidation attempt against a borrower, racing
// anyone else's pending transaction that targets the same address.
type Race struct {
	Borrower    common.Address
	GasPriceWei *big.Int
	InitialHash common.Hash
	Resubmit    Resubmitter

	hashes map[common.Hash]struct{}
}

// Watchdog watches the full pending-transaction feed for calldata that
// references a borrower currently being raced, and bumps gas in response.
type Watchdog struct {
	source    PendingSource
	receipts  ReceiptFetcher
	ownSigner types.Signer
	ownAddr   common.Address

	mu    sync.Mutex
	races map[common.Address]*Race

	onGasBump func()
}

// New returns a Watchdog reading from source. receipts polls the mining
// outcome of every transaction a tracked race has broadcast; ownAddr is the
// submitter's own public address, used to skip our own resubmissions when
// they echo back through the pending-transaction feed, and chainID
// recovers the sender of an observed tx for that comparison (nil disables
// the check, treating every pending tx as a potential competitor).
func New(source PendingSource, receipts ReceiptFetcher, ownAddr common.Address, chainID *big.Int) *Watchdog {
	w := &Watchdog{
		source:   source,
		receipts: receipts,
		ownAddr:  ownAddr,
		races:    make(map[common.Address]*Race),
	}
	if chainID != nil {
		w.ownSigner = types.LatestSignerForChainID(chainID)
	}
	return w
}

// OnGasBump registers a callback invoked every time this watchdog issues a
// replace-by-fee bump, for metrics instrumentation.
func (w *Watchdog) OnGasBump(fn func()) {
	w.onGasBump = fn
}

// Track registers a borrower whose liquidation is in flight, to be raced
// against competing pending transactions and polled for confirmation or
// failure for up to raceTimeout. It returns a channel that closes once the
// race has resolved (confirmed, exhausted, or timed out), so a caller that
// needs the full outcome of the attempt — not just the initial submission —
// can block on it.
func (w *Watchdog) Track(race *Race) <-chan struct{} {
	race.hashes = map[common.Hash]struct{}{race.InitialHash: {}}

	w.mu.Lock()
	w.races[race.Borrower] = race
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.watch(race)
		close(done)
	}()
	return done
}

// watch polls race's edited transaction set for confirmation or terminal
// failure until one of the three stop conditions in the spec fires: any
// edited hash confirms (success), the edited set empties out because every
// hash failed (failure), or the hard timeout elapses.
func (w *Watchdog) watch(race *Race) {
	deadline := time.After(raceTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			w.stopRace(race.Borrower)
			return
		case <-ticker.C:
			if w.pollRace(race) {
				w.stopRace(race.Borrower)
				return
			}
		}
	}
}

// pollRace checks every hash the race has broadcast so far. It returns true
// once the race should stop: a hash confirmed (success) or every hash has
// failed and none remain to watch (failure).
func (w *Watchdog) pollRace(race *Race) bool {
	if w.receipts == nil {
		return false
	}

	w.mu.Lock()
	hashes := make([]common.Hash, 0, len(race.hashes))
	for h := range race.hashes {
		hashes = append(hashes, h)
	}
	w.mu.Unlock()

	for _, h := range hashes {
		receipt, err := w.receipts.TransactionReceipt(context.Background(), h)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return true
		}

		w.mu.Lock()
		delete(race.hashes, h)
		remaining := len(race.hashes)
		w.mu.Unlock()
		if remaining == 0 {
			return true
		}
	}
	return false
}

func (w *Watchdog) stopRace(borrower common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.races, borrower)
}

// Run subscribes to the full pending-transaction feed and dispatches
// matching competitor transactions until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) error {
	ch := make(chan *types.Transaction, 256)
	sub, err := w.source.SubscribeFullPendingTransactions(ctx, ch)
	if err != nil {
		return fmt.Errorf("subscribe pending transactions: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("pending transaction subscription: %w", err)
		case tx := <-ch:
			w.handle(ctx, tx)
		}
	}
}

// handle inspects one pending transaction's calldata for a borrower
// address currently being raced and triggers a gas bump on a match.
func (w *Watchdog) handle(ctx context.Context, tx *types.Transaction) {
	if tx == nil || tx.Data() == nil {
		return
	}
	if w.ownSigner != nil {
		if sender, err := types.Sender(w.ownSigner, tx); err == nil && sender == w.ownAddr {
			return
		}
	}
	calldata := strings.ToLower(common.Bytes2Hex(tx.Data()))

	w.mu.Lock()
	var match *Race
	for borrower, race := range w.races {
		if strings.Contains(calldata, strings.ToLower(strings.TrimPrefix(borrower.Hex(), "0x"))) {
			match = race
			break
		}
	}
	w.mu.Unlock()

	if match == nil {
		return
	}

	competitorGas := tx.GasPrice()
	if competitorGas == nil {
		competitorGas = tx.GasFeeCap()
	}
	if competitorGas == nil || competitorGas.Cmp(match.GasPriceWei) <= 0 {
		return
	}

	bumped := util.BumpGasPrice(competitorGas)
	newHash, err := match.Resubmit(ctx, bumped)
	if err != nil {
		return
	}

	w.mu.Lock()
	match.hashes[newHash] = struct{}{}
	match.GasPriceWei = bumped
	w.mu.Unlock()

	if w.onGasBump != nil {
		w.onGasBump()
	}
}
