package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "owner_ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_transactions_total",
			Help: "Total number of ledger transactions recorded",
		},
		[]string{"type"},
	)

	PaymentRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_payment_rejections_total",
			Help: "Total number of rejected wallet payments",
		},
		[]string{"kind", "reason"},
	)

	StatementsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owner_ledger_statements_generated_total",
			Help: "Total number of statement drafts generated",
		},
	)

	StatementsFinalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owner_ledger_statements_finalized_total",
			Help: "Total number of statements finalized",
		},
	)

	CommissionAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_commission_adjustments_total",
			Help: "Total number of booking reconciliations by transition",
		},
		[]string{"transition"},
	)

	WalletDriftTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owner_ledger_wallet_drift_total",
			Help: "Total number of wallets found out of sync with their ledger",
		},
	)

	WalletHealedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_wallet_healed_total",
			Help: "Total number of wallets rewritten from their ledger",
		},
		[]string{"source"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_notifications_total",
			Help: "Total number of outbound notifications by outcome",
		},
		[]string{"event", "status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "owner_ledger_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)

	FXFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_ledger_fx_fallbacks_total",
			Help: "Total number of FX lookups that fell back to a default rate",
		},
		[]string{"currency"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerTransaction(txType string) {
	LedgerTransactionsTotal.WithLabelValues(txType).Inc()
}

func RecordPaymentRejected(kind, reason string) {
	PaymentRejectionsTotal.WithLabelValues(kind, reason).Inc()
}

func RecordStatementGenerated() {
	StatementsGeneratedTotal.Inc()
}

func RecordStatementFinalized() {
	StatementsFinalizedTotal.Inc()
}

func RecordCommissionAdjustment(transition string) {
	CommissionAdjustmentsTotal.WithLabelValues(transition).Inc()
}

func RecordWalletDrift() {
	WalletDriftTotal.Inc()
}

func RecordWalletHealed(source string) {
	WalletHealedTotal.WithLabelValues(source).Inc()
}

func RecordNotification(event, status string) {
	NotificationsTotal.WithLabelValues(event, status).Inc()
}

func SetQueueLength(n int) {
	NotificationQueueLength.Set(float64(n))
}

func RecordFXFallback(currency string) {
	FXFallbacksTotal.WithLabelValues(currency).Inc()
}
