package aave

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidationbot/internal/fanout"
	"liquidationbot/internal/metrics"
	"liquidationbot/pkg/watchlist"
)

// bootstrapFanoutWidth is the fixed parallel width used while scoring the
// full candidate universe at startup, chosen to stay well under typical
// node-provider rate limits.
const bootstrapFanoutWidth = 500

// DefaultTrackedCap (K) bounds how many addresses are under active
// observation at once.
const DefaultTrackedCap = 200

// UpperHealthFactorBound is the hysteresis ceiling: an address is only
// untracked once its health factor climbs strictly above this, not merely
// back above the liquidation boundary, to avoid thrashing near 1e18.
var UpperHealthFactorBound = func() *big.Int {
	v := new(big.Int).Mul(big.NewInt(101), oneRay)
	return v.Quo(v, big.NewInt(100))
}()

// minTrackableDebt is the numéraire debt floor below which a candidate is
// not worth a tracked slot (10^-4 of the numéraire, i.e. 1e14 of the
// 1e18-scaled unit).
var minTrackableDebt = big.NewInt(1e14)

// AccountReader is the subset of AccountOracle the Tracker depends on,
// narrowed for testability.
type AccountReader interface {
	GetAccountSummary(ctx context.Context, borrower common.Address) *AccountSummary
}

// Blacklist reports whether an address must never be tracked.
type Blacklist interface {
	Contains(address string) (bool, error)
}

// blacklistStore adapts a watchlist.Store to the narrow Blacklist
// interface the Tracker depends on.
type blacklistStore struct {
	store watchlist.Store
}

func (b blacklistStore) Contains(address string) (bool, error) {
	return b.store.Contains(watchlist.Blacklist, address)
}

// Dispatcher hands a liquidatable borrower off to the Liquidator without
// blocking the run loop; the Tracker only waits for the dispatch to be
// accepted, not for the liquidation to complete.
type Dispatcher interface {
	Dispatch(borrower common.Address)
}

// Tracker owns the bounded tracked set and drives the bootstrap and
// run-loop control flow described for the agent's core scan cycle.
type Tracker struct {
	store      watchlist.Store
	blacklist  Blacklist
	oracle     AccountReader
	subgraph   SubgraphSource
	dispatcher Dispatcher
	cap        int

	mu      sync.RWMutex
	tracked map[common.Address]*TrackedEntry
}

// SubgraphSource enumerates borrower candidates for bootstrap, narrowed
// from pkg/subgraph.Client so tests can substitute a fixed list.
type SubgraphSource interface {
	Accounts(ctx context.Context, first int, lastID string) ([]string, error)
}

// NewTracker returns a Tracker with an empty in-memory tracked set, bound
// to store, blacklist, oracle, subgraph, and dispatcher collaborators.
func NewTracker(store watchlist.Store, oracle AccountReader, subgraph SubgraphSource, dispatcher Dispatcher, cap int) *Tracker {
	if cap <= 0 {
		cap = DefaultTrackedCap
	}
	return &Tracker{
		store:      store,
		blacklist:  blacklistStore{store: store},
		oracle:     oracle,
		subgraph:   subgraph,
		dispatcher: dispatcher,
		cap:        cap,
		tracked:    make(map[common.Address]*TrackedEntry),
	}
}

// candidateScore pairs a candidate address with its observed summary, for
// sorting during bootstrap selection.
type candidateScore struct {
	address common.Address
	summary *AccountSummary
}

// Bootstrap seeds the tracked set: restores it from the store if already
// full, otherwise enumerates candidates (from AllKnown, or the subgraph if
// AllKnown is empty), scores them, and fills the remaining slots with the
// lowest health factors above the liquidation boundary.
func (t *Tracker) Bootstrap(ctx context.Context) error {
	existing, err := t.store.Members(watchlist.Tracked)
	if err != nil {
		return err
	}

	t.mu.Lock()
	for _, addr := range existing {
		a := common.HexToAddress(addr)
		t.tracked[a] = &TrackedEntry{Address: a, State: StateTracked, LastCheckedAt: time.Now()}
	}
	alreadyTracked := len(t.tracked)
	t.mu.Unlock()

	if alreadyTracked >= t.cap {
		metrics.TrackedSetSize.Set(float64(alreadyTracked))
		return nil
	}

	candidates, err := t.loadCandidates(ctx)
	if err != nil {
		return err
	}

	scores := t.scoreCandidates(ctx, candidates)

	eligible := make([]candidateScore, 0, len(scores))
	for _, c := range scores {
		if c.summary == nil {
			continue
		}
		if c.summary.TotalDebt.Cmp(minTrackableDebt) <= 0 {
			continue
		}
		if c.summary.HealthFactor.Cmp(HealthFactorBoundary) <= 0 {
			continue
		}
		blacklisted, _ := t.blacklist.Contains(c.address.Hex())
		if blacklisted {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].summary.HealthFactor.Cmp(eligible[j].summary.HealthFactor) < 0
	})

	remaining := t.cap - alreadyTracked
	if remaining > len(eligible) {
		remaining = len(eligible)
	}

	t.mu.Lock()
	for i := 0; i < remaining; i++ {
		c := eligible[i]
		t.tracked[c.address] = &TrackedEntry{
			Address:          c.address,
			LastHealthFactor: c.summary.HealthFactor,
			LastCheckedAt:    time.Now(),
			State:            StateTracked,
		}
	}
	size := len(t.tracked)
	t.mu.Unlock()

	if size == 0 {
		return ErrEmptyCandidateSet
	}

	for i := 0; i < remaining; i++ {
		_ = t.store.Add(watchlist.Tracked, eligible[i].address.Hex())
	}

	metrics.TrackedSetSize.Set(float64(size))
	return nil
}

func (t *Tracker) loadCandidates(ctx context.Context) ([]common.Address, error) {
	known, err := t.store.Members(watchlist.AllKnown)
	if err == nil && len(known) > 0 {
		out := make([]common.Address, len(known))
		for i, a := range known {
			out[i] = common.HexToAddress(a)
		}
		return out, nil
	}
	if t.subgraph == nil {
		return nil, nil
	}

	var all []common.Address
	lastID := "0"
	for {
		batch, err := t.subgraph.Accounts(ctx, 1000, lastID)
		if err != nil {
			return all, nil
		}
		if len(batch) == 0 {
			break
		}
		for _, id := range batch {
			addr := common.HexToAddress(id)
			all = append(all, addr)
			_ = t.store.Add(watchlist.AllKnown, addr.Hex())
		}
		lastID = batch[len(batch)-1]
		if len(batch) < 1000 {
			break
		}
	}
	return all, nil
}

// scoreCandidates fans Account Oracle reads out over the candidate list at
// the bootstrap parallel width, collecting each resulting summary
// (blacklist filtering happens synchronously after this step completes,
// correcting the unawaited-predicate defect of filtering mid-fan-out).
func (t *Tracker) scoreCandidates(ctx context.Context, candidates []common.Address) []candidateScore {
	var mu sync.Mutex
	scores := make([]candidateScore, 0, len(candidates))

	fanout.Run(ctx, bootstrapFanoutWidth, candidates, nil, func(ctx context.Context, addr common.Address) {
		summary := t.oracle.GetAccountSummary(ctx, addr)
		mu.Lock()
		scores = append(scores, candidateScore{address: addr, summary: summary})
		mu.Unlock()
	})

	return scores
}

// Snapshot returns the currently tracked addresses.
func (t *Tracker) Snapshot() []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]common.Address, 0, len(t.tracked))
	for a := range t.tracked {
		out = append(out, a)
	}
	return out
}

// Size returns the number of currently tracked addresses.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracked)
}

// removalReason labels why an entry left the tracked set, for metrics.
type removalReason string

const (
	reasonTransientFailure removalReason = "transient_failure"
	reasonHealed           removalReason = "healed"
	reasonLiquidating      removalReason = "liquidating"
)

// RunIteration performs one pass of the run loop: fan out account reads
// over the entire tracked set, apply the state machine, persist removals,
// and report the minimum observed health factor.
func (t *Tracker) RunIteration(ctx context.Context) {
	start := time.Now()

	t.mu.RLock()
	addrs := make([]common.Address, 0, len(t.tracked))
	for a := range t.tracked {
		addrs = append(addrs, a)
	}
	t.mu.RUnlock()

	type outcome struct {
		addr    common.Address
		summary *AccountSummary
	}
	var mu sync.Mutex
	outcomes := make([]outcome, 0, len(addrs))

	fanout.Run(ctx, len(addrs), addrs, nil, func(ctx context.Context, addr common.Address) {
		summary := t.oracle.GetAccountSummary(ctx, addr)
		mu.Lock()
		outcomes = append(outcomes, outcome{addr: addr, summary: summary})
		mu.Unlock()
	})

	next := make(map[common.Address]*TrackedEntry, len(addrs))
	var removed []struct {
		addr   common.Address
		reason removalReason
	}
	var minHF *big.Int

	for _, o := range outcomes {
		switch {
		case o.summary == nil:
			removed = append(removed, struct {
				addr   common.Address
				reason removalReason
			}{o.addr, reasonTransientFailure})

		case o.summary.HealthFactor.Cmp(HealthFactorBoundary) <= 0:
			removed = append(removed, struct {
				addr   common.Address
				reason removalReason
			}{o.addr, reasonLiquidating})
			if t.dispatcher != nil {
				t.dispatcher.Dispatch(o.addr)
			}

		case o.summary.HealthFactor.Cmp(UpperHealthFactorBound) > 0:
			removed = append(removed, struct {
				addr   common.Address
				reason removalReason
			}{o.addr, reasonHealed})

		default:
			next[o.addr] = &TrackedEntry{
				Address:          o.addr,
				LastHealthFactor: o.summary.HealthFactor,
				LastCheckedAt:    time.Now(),
				State:            StateTracked,
			}
			if minHF == nil || o.summary.HealthFactor.Cmp(minHF) < 0 {
				minHF = new(big.Int).Set(o.summary.HealthFactor)
			}
		}
	}

	t.mu.Lock()
	t.tracked = next
	size := len(t.tracked)
	t.mu.Unlock()

	for _, r := range removed {
		_ = t.store.Remove(watchlist.Tracked, r.addr.Hex())
		metrics.RemovedTotal.WithLabelValues(string(r.reason)).Inc()
	}

	metrics.TrackedSetSize.Set(float64(size))
	if minHF != nil {
		hf, _ := new(big.Float).SetInt(minHF).Float64()
		metrics.MinHealthFactor.Set(hf)
	}
	metrics.IterationDurationSeconds.Observe(time.Since(start).Seconds())
}

// Run drives the run loop forever, one iteration per call, with no pause
// between iterations by default since the control loop is latency
// critical; callers that want a pause insert it between calls.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		t.RunIteration(ctx)
	}
}
