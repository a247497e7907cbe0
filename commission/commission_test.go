package commission_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/commission"
	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCommission_DefaultAndExplicitRate(t *testing.T) {
	assert.Equal(t, "150.00", commission.Commission(d("1000"), nil).StringFixed(2))

	rate := d("0.20")
	assert.Equal(t, "200.00", commission.Commission(d("1000"), &rate).StringFixed(2))

	assert.Equal(t, "18.52", commission.Commission(d("123.45"), nil).StringFixed(2), "18.5175 rounds half up")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, commission.OwnerOwes, commission.Classify(ledger.PaidToOwner))
	assert.Equal(t, commission.CompanyNetted, commission.Classify(ledger.PaidToCompany))
}

func TestForBooking_ConvertsToTarget(t *testing.T) {
	// GIVEN: A USD booking of 90 + 10 cleaning on a property without a rate
	// WHEN: Computing commission in GHS
	// THEN: gross 1550, commission 232.50 (15% of 100 USD, converted)

	calc := commission.NewCalculator(fx.New(nil, "GHS", zerolog.Nop()))

	b := ledger.Booking{
		ID:                "bk-1",
		Currency:          "USD",
		BaseAmount:        d("90"),
		CleaningFee:       d("10"),
		PlatformFees:      d("12"),
		PaymentReceivedBy: ledger.PaidToOwner,
	}
	out, err := calc.ForBooking(context.Background(), b, &ledger.Property{ID: "p-1"}, "GHS")
	require.NoError(t, err)

	assert.Equal(t, "1550.00", out.Gross.StringFixed(2))
	assert.Equal(t, "232.50", out.Commission.StringFixed(2))
	assert.Equal(t, commission.OwnerOwes, out.Flow)
	assert.True(t, commission.DefaultRate.Equal(out.Rate))
}

func TestForBooking_SameCurrencyUsesPropertyRate(t *testing.T) {
	calc := commission.NewCalculator(fx.New(nil, "GHS", zerolog.Nop()))
	rate := d("0.10")

	out, err := calc.ForBooking(context.Background(), ledger.Booking{
		Currency:          "GHS",
		BaseAmount:        d("500"),
		PaymentReceivedBy: ledger.PaidToCompany,
	}, &ledger.Property{DefaultCommissionRate: &rate}, "GHS")
	require.NoError(t, err)

	assert.Equal(t, "50.00", out.Commission.StringFixed(2))
	assert.Equal(t, commission.CompanyNetted, out.Flow)
}
