package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal, breakerState) }

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by kind and result (sent/failed/dropped).",
		},
		[]string{"kind", "result"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"name"},
	)
)

func IncNotification(kind, result string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(norm(name)).Set(float64(state))
}
