// Package fanout bounds the parallel width of I/O-bound RPC calls the
// Tracker and Market Catalog fire against the externally rate-limited node
// endpoint. It is the one place concurrency policy lives, so bootstrap's
// 500-wide scoring pass and a tracked-set iteration's up-to-K-wide pass
// share the same backpressure mechanics.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter optionally paces calls beyond the concurrency cap, for RPC
// endpoints that additionally enforce a requests-per-second budget. A nil
// Limiter disables pacing; only the semaphore width applies.
type Limiter = rate.Limiter

// NewLimiter returns a token-bucket limiter allowing ratePerSecond requests
// per second with a burst of int(ratePerSecond)+1, so even a rate below one
// admits a single request.
func NewLimiter(ratePerSecond float64) *Limiter {
	return rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1)
}

// Run calls fn(item) for every item in items with at most width concurrent
// invocations in flight, stopping early if ctx is canceled. It never
// returns an error itself: callers that need per-item outcomes collect
// them inside fn, since one item's transient RPC failure must not abort
// its siblings (per the defensive-removal design throughout the Tracker).
func Run[T any](ctx context.Context, width int, items []T, limiter *Limiter, fn func(ctx context.Context, item T)) {
	if width <= 0 {
		width = 1
	}

	sem := semaphore.NewWeighted(int64(width))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, item := range items {
		item := item
		if err := sem.Acquire(groupCtx, 1); err != nil {
			// Context canceled; stop admitting new work.
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			if limiter != nil {
				if err := limiter.Wait(groupCtx); err != nil {
					return nil
				}
			}
			fn(groupCtx, item)
			return nil
		})
	}

	_ = group.Wait()
}
