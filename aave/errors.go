package aave

import "errors"

// ErrUpstreamUnavailable is returned by Market Catalog operations when any
// underlying RPC call fails. The caller decides whether to keep serving
// stale cached data.
var ErrUpstreamUnavailable = errors.New("aave: upstream unavailable")

// ErrEmptyCandidateSet is a fatal bootstrap error: no borrower survived the
// eligibility filter, so the tracked set cannot be seeded at all.
var ErrEmptyCandidateSet = errors.New("aave: no eligible candidates after bootstrap filtering")

// ErrNoMarkets is returned by Market Catalog loads when there is no reserve
// to read: the configured reserve list is empty and nothing is cached.
var ErrNoMarkets = errors.New("aave: market catalog is empty")
