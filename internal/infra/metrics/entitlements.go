package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(consumeTotal, consumeLatency, entitlementsByPlan)
}

var (
	consumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_consume_total",
			Help: "Consumption decisions by action kind and result.",
		},
		[]string{"kind", "result"}, // result: allowed, blocked, exhausted, invalid, transient
	)

	consumeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entitlement_consume_seconds",
			Help:    "Latency of authorize-and-consume including the store round trip.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	entitlementsByPlan = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entitlements_by_plan",
			Help: "Entitlement records per stored plan.",
		},
		[]string{"plan"},
	)
)

func ObserveConsume(kind, result string, seconds float64) {
	consumeTotal.WithLabelValues(norm(kind), norm(result)).Inc()
	consumeLatency.Observe(seconds)
}

func SetEntitlementsByPlan(counts map[string]int) {
	for plan, n := range counts {
		entitlementsByPlan.WithLabelValues(norm(plan)).Set(float64(n))
	}
}
