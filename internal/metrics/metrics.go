package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillprob_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_payments_total",
			Help: "Total number of payments by gateway and status transition",
		},
		[]string{"gateway", "status"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_webhook_events_total",
			Help: "Webhook deliveries by gateway and processing result",
		},
		[]string{"gateway", "result"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_refunds_total",
			Help: "Refunds processed by gateway",
		},
		[]string{"gateway"},
	)

	LedgerAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_ledger_appends_total",
			Help: "Ledger transactions appended by type",
		},
		[]string{"type"},
	)

	PayoutTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_payout_transitions_total",
			Help: "Payout request state transitions by target state",
		},
		[]string{"to"},
	)

	NotificationsQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillprob_notifications_queued_total",
			Help: "Notifications queued by type and status",
		},
		[]string{"type", "status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skillprob_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPayment(gateway, status string) {
	PaymentsTotal.WithLabelValues(gateway, status).Inc()
}

func RecordWebhookEvent(gateway, result string) {
	WebhookEventsTotal.WithLabelValues(gateway, result).Inc()
}

func RecordLedgerAppend(txType string) {
	LedgerAppendsTotal.WithLabelValues(txType).Inc()
}

func RecordPayoutTransition(to string) {
	PayoutTransitionsTotal.WithLabelValues(to).Inc()
}
