package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(settlementsTotal, purchasesTotal) }

var (
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Payment confirmations by outcome (applied/noop/failed/error).",
		},
		[]string{"outcome"},
	)

	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_created_total",
			Help: "Pending settlements created, by purchase kind.",
		},
		[]string{"kind"},
	)
)

func IncSettlement(outcome string) {
	settlementsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncPurchase(kind string) {
	purchasesTotal.WithLabelValues(norm(kind)).Inc()
}
