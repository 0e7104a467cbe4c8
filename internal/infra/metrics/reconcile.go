package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(reconcileTransitions, reconcileFailures, reconcileDuration, reconcileSkipped)
}

var (
	reconcileTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_transitions_total",
			Help: "Time-driven transitions applied by the reconciler.",
		},
		[]string{"transition"}, // daily_reset, unblocked, expired_to_free, monthly_refilled
	)

	reconcileFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_record_failures_total",
			Help: "Records the reconciler could not update in a sweep.",
		},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_sweep_seconds",
			Help:    "Duration of a full reconciliation sweep.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	reconcileSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_sweeps_skipped_total",
			Help: "Sweeps skipped because another replica held the lock.",
		},
	)
)

func AddReconcileTransition(transition string, n int) {
	if n > 0 {
		reconcileTransitions.WithLabelValues(norm(transition)).Add(float64(n))
	}
}

func AddReconcileFailures(n int) {
	if n > 0 {
		reconcileFailures.Add(float64(n))
	}
}

func ObserveSweep(seconds float64) { reconcileDuration.Observe(seconds) }

func IncSweepSkipped() { reconcileSkipped.Inc() }
