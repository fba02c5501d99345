package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oprema_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oprema_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// TransferTransitions counts state machine operations by outcome.
	// Outcome is "ok" or an error kind.
	TransferTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oprema_transfer_transitions_total",
			Help: "Transfer request operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Reconciliations counts holder updates retried after completion.
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oprema_transfer_reconciliations_total",
			Help: "Equipment holder reconciliation attempts",
		},
		[]string{"result"},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oprema_notifications_total",
			Help: "Notification writes by type and result",
		},
		[]string{"type", "result"},
	)

	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oprema_live_subscribers",
			Help: "Open notification feed subscriptions",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		RequestCount, RequestDuration,
		TransferTransitions, Reconciliations,
		NotificationsCreated, LiveSubscribers,
	)
}
