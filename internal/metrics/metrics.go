// Package metrics exposes the agent's runtime health as Prometheus gauges
// and counters, following the same registration style the rest of the
// corpus uses for its own node-health metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TrackedSetSize is the current size of the tracked address set.
	TrackedSetSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "liquidator",
		Name:      "tracked_set_size",
		Help:      "Number of borrower addresses currently under active observation.",
	})

	// MinHealthFactor is the lowest health factor observed among tracked
	// addresses in the most recently completed iteration, 1e18-scaled.
	MinHealthFactor = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "liquidator",
		Name:      "min_health_factor",
		Help:      "Lowest health factor (1e18 fixed-point) seen in the last tracker iteration.",
	})

	// RemovedTotal counts addresses dropped from the tracked set, labeled
	// by the reason they left.
	RemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "removed_total",
		Help:      "Addresses removed from the tracked set, by reason.",
	}, []string{"reason"})

	// LiquidationAttemptsTotal counts liquidation submissions, labeled by
	// outcome.
	LiquidationAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "liquidation_attempts_total",
		Help:      "Liquidation transactions submitted, by outcome.",
	}, []string{"outcome"})

	// GasBumpsTotal counts replace-by-fee gas bumps issued by the mempool
	// watchdog.
	GasBumpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "gas_bumps_total",
		Help:      "Replace-by-fee gas bumps issued in response to a detected competitor.",
	})

	// RPCErrorsTotal counts upstream RPC failures, labeled by the component
	// that observed them.
	RPCErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liquidator",
		Name:      "rpc_errors_total",
		Help:      "Upstream RPC call failures, by originating component.",
	}, []string{"component"})

	// IterationDurationSeconds observes how long one tracker run-loop pass
	// takes end to end.
	IterationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "liquidator",
		Name:      "iteration_duration_seconds",
		Help:      "Wall-clock time spent in one tracker iteration.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Registry is the metrics registry the process exposes over /metrics. A
// dedicated registry (rather than the global default) keeps test runs from
// leaking state across packages.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		TrackedSetSize,
		MinHealthFactor,
		RemovedTotal,
		LiquidationAttemptsTotal,
		GasBumpsTotal,
		RPCErrorsTotal,
		IterationDurationSeconds,
	)
}
