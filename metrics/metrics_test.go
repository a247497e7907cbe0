package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/statements/{id}/finalize", "200", 0.2)
	RecordHTTPRequest("POST", "/api/statements/{id}/finalize", "409", 0.01)
	RecordHTTPRequest("POST", "/api/statements/{id}/finalize", "200", 0.3)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/statements/{id}/finalize", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/statements/{id}/finalize", "409")))
}

func TestRecordLedgerTransaction(t *testing.T) {
	LedgerTransactionsTotal.Reset()

	RecordLedgerTransaction("COMMISSION_PAYMENT")
	RecordLedgerTransaction("COMMISSION_PAYMENT")
	RecordLedgerTransaction("STATEMENT_NET")

	assert.Equal(t, float64(2), testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("COMMISSION_PAYMENT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("STATEMENT_NET")))
}

func TestRecordPaymentRejected(t *testing.T) {
	PaymentRejectionsTotal.Reset()

	RecordPaymentRejected("commission", "insufficient_commission")
	RecordPaymentRejected("balance", "exceeds_outstanding")

	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentRejectionsTotal.WithLabelValues("commission", "insufficient_commission")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentRejectionsTotal.WithLabelValues("balance", "exceeds_outstanding")))
}

func TestWalletDriftAndHeal(t *testing.T) {
	before := testutil.ToFloat64(WalletDriftTotal)
	WalletHealedTotal.Reset()

	RecordWalletDrift()
	RecordWalletHealed("audit")
	RecordWalletHealed("read")
	RecordWalletHealed("read")

	assert.Equal(t, before+1, testutil.ToFloat64(WalletDriftTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(WalletHealedTotal.WithLabelValues("audit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(WalletHealedTotal.WithLabelValues("read")))
}

func TestSetQueueLength(t *testing.T) {
	SetQueueLength(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(NotificationQueueLength))

	SetQueueLength(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(NotificationQueueLength))
}
