/*
Package commission computes the company's cut of a booking and decides who
owes it.

PAYMENT FLOWS:
  COMPANY received the guest's money ─▶ commission netted at source,
                                        nothing accrues to the owner
  OWNER received the guest's money   ─▶ owner owes the commission,
                                        it accrues to commissionsPayable

BASE:
  Commission base is gross revenue = base amount + cleaning fee. Platform
  fees and taxes are never commissioned.
*/
package commission

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/ledger"
)

// DefaultRate applies when a property has no rate of its own.
var DefaultRate = decimal.RequireFromString("0.15")

// Flow classifies how a booking's commission is settled.
type Flow string

const (
	CompanyNetted Flow = "COMPANY_NETTED"
	OwnerOwes     Flow = "OWNER_OWES"
)

// Commission returns gross × rate rounded to 2 dp. A nil rate means DefaultRate.
func Commission(gross decimal.Decimal, rate *decimal.Decimal) decimal.Decimal {
	r := DefaultRate
	if rate != nil {
		r = *rate
	}
	return ledger.Round(gross.Mul(r))
}

// Classify maps who received the guest payment to the commission flow.
func Classify(receivedBy ledger.PaymentParty) Flow {
	if receivedBy == ledger.PaidToOwner {
		return OwnerOwes
	}
	return CompanyNetted
}

// RateFor returns the property's rate, or nil for the default.
func RateFor(p *ledger.Property) *decimal.Decimal {
	if p == nil {
		return nil
	}
	return p.DefaultCommissionRate
}

// Breakdown is one booking's gross and commission in a target currency.
type Breakdown struct {
	Currency   ledger.Currency
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Rate       decimal.Decimal
	Flow       Flow
}

// Calculator converts booking figures with a ledger.Converter.
type Calculator struct {
	Converter ledger.Converter
}

func NewCalculator(c ledger.Converter) *Calculator {
	return &Calculator{Converter: c}
}

// ForBooking computes gross and commission in the booking's own currency,
// then converts both to target.
func (c *Calculator) ForBooking(ctx context.Context, b ledger.Booking, p *ledger.Property, target ledger.Currency) (*Breakdown, error) {
	rate := RateFor(p)
	gross := b.GrossRevenue()
	comm := Commission(gross, rate)

	out := &Breakdown{
		Currency:   target,
		Gross:      gross,
		Commission: comm,
		Rate:       DefaultRate,
		Flow:       Classify(b.PaymentReceivedBy),
	}
	if rate != nil {
		out.Rate = *rate
	}

	if b.Currency == target {
		return out, nil
	}

	var err error
	if out.Gross, err = c.Converter.Convert(ctx, gross, b.Currency, target); err != nil {
		return nil, fmt.Errorf("convert booking %s gross: %w", b.ID, err)
	}
	if out.Commission, err = c.Converter.Convert(ctx, comm, b.Currency, target); err != nil {
		return nil, fmt.Errorf("convert booking %s commission: %w", b.ID, err)
	}
	return out, nil
}
