/*
Package reconcile keeps commissionsPayable in step with booking edits.

TRANSITION TABLE (old routing ─▶ new routing):
  OWNER   ─▶ COMPANY  liability released:   -oldCommission
  COMPANY ─▶ OWNER    liability created:    +newCommission
  OWNER   ─▶ OWNER    liability re-priced:  newCommission - oldCommission
  COMPANY ─▶ COMPANY  no wallet effect

  A new booking (no old state) is treated as coming from COMPANY, so an
  owner-received booking accrues on creation. A CANCELLED booking carries
  no commission, so cancelling an owner-received booking releases it.

POSTING:
  A non-zero adjustment is one COMMISSION_ADJUSTMENT transaction with
  Amount 0 and CommissionDelta = adjustment, recorded in the same unit as
  the booking save. commissionsPayable is never driven below zero: the
  adjustment is clamped and the note keeps the unclamped figure.
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/commission"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/metrics"
)

type Transition string

const (
	OwnerToCompany   Transition = "OWNER_TO_COMPANY"
	CompanyToOwner   Transition = "COMPANY_TO_OWNER"
	OwnerToOwner     Transition = "OWNER_TO_OWNER"
	CompanyToCompany Transition = "COMPANY_TO_COMPANY"
	Unchanged        Transition = "UNCHANGED"
)

// Result describes what one booking save did to the wallet.
type Result struct {
	Booking    ledger.Booking
	Transition Transition

	OldCommission decimal.Decimal
	NewCommission decimal.Decimal

	// Adjustment is what was posted; Unclamped is what the table asked for.
	Adjustment decimal.Decimal
	Unclamped  decimal.Decimal

	Transaction *ledger.Transaction
	Wallet      *ledger.Wallet
}

type Reconciler struct {
	Ledger     *ledger.Ledger
	Calculator *commission.Calculator
	Log        zerolog.Logger
}

func New(l *ledger.Ledger, calc *commission.Calculator, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		Ledger:     l,
		Calculator: calc,
		Log:        log.With().Str("component", "reconciler").Logger(),
	}
}

// Apply saves updated and posts the commission adjustment implied by the
// change from old. old is nil for a new booking. Callers that hold no
// prior state should use Create or ApplyByID, which read it under the
// owner lock.
func (r *Reconciler) Apply(ctx context.Context, old *ledger.Booking, updated ledger.Booking) (*Result, error) {
	return r.run(ctx, updated, func(ledger.Store) (*ledger.Booking, error) {
		return old, nil
	})
}

// Create saves a new booking. Returns ErrBookingExists if the id is taken.
func (r *Reconciler) Create(ctx context.Context, b ledger.Booking) (*Result, error) {
	return r.run(ctx, b, func(s ledger.Store) (*ledger.Booking, error) {
		existing, err := s.GetBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ledger.ErrBookingExists
		}
		return nil, nil
	})
}

// ApplyByID loads the stored booking and applies updated over it.
func (r *Reconciler) ApplyByID(ctx context.Context, updated ledger.Booking) (*Result, error) {
	return r.run(ctx, updated, func(s ledger.Store) (*ledger.Booking, error) {
		old, err := s.GetBooking(ctx, updated.ID)
		if err != nil {
			return nil, err
		}
		if old == nil {
			return nil, ledger.ErrBookingNotFound
		}
		return old, nil
	})
}

// run reads the prior state and applies the change inside one owner unit.
func (r *Reconciler) run(ctx context.Context, updated ledger.Booking, prior func(ledger.Store) (*ledger.Booking, error)) (*Result, error) {
	if err := validateBooking(updated); err != nil {
		return nil, err
	}

	var result *Result
	err := r.Ledger.Store.WithTx(ctx, updated.OwnerID, func(s ledger.Store) error {
		old, err := prior(s)
		if err != nil {
			return err
		}
		if old != nil && old.OwnerID != updated.OwnerID {
			return &ledger.ValidationError{Field: "owner_id", Message: "booking owner cannot change"}
		}
		result, err = r.apply(ctx, s, old, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCommissionAdjustment(string(result.Transition))
	if !result.Adjustment.IsZero() {
		r.Log.Info().
			Str("booking_id", string(updated.ID)).
			Str("owner_id", string(updated.OwnerID)).
			Str("transition", string(result.Transition)).
			Str("adjustment", result.Adjustment.StringFixed(2)).
			Msg("Commission adjusted")
	}
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, s ledger.Store, old *ledger.Booking, updated ledger.Booking) (*Result, error) {
	property, err := s.GetProperty(ctx, updated.PropertyID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, ledger.ErrPropertyNotFound
	}

	wallet, err := r.Ledger.GetOrCreateWallet(ctx, s, updated.OwnerID)
	if err != nil {
		return nil, err
	}

	updated.UpdatedAt = time.Now().UTC()
	result := &Result{
		Booking:       updated,
		Transition:    Unchanged,
		OldCommission: decimal.Zero,
		NewCommission: decimal.Zero,
		Adjustment:    decimal.Zero,
		Unclamped:     decimal.Zero,
		Wallet:        wallet,
	}

	if old != nil && !affectsCommission(*old, updated) {
		return result, s.SaveBooking(ctx, updated)
	}

	oldParty := ledger.PaidToCompany
	if old != nil {
		oldParty = old.PaymentReceivedBy
		if result.OldCommission, err = r.commission(ctx, *old, property, wallet.Currency); err != nil {
			return nil, err
		}
	}
	if result.NewCommission, err = r.commission(ctx, updated, property, wallet.Currency); err != nil {
		return nil, err
	}

	result.Transition, result.Unclamped = Adjust(oldParty, updated.PaymentReceivedBy, result.OldCommission, result.NewCommission)
	result.Adjustment = Clamp(wallet.CommissionsPayable, result.Unclamped)

	if !result.Adjustment.IsZero() {
		notes := fmt.Sprintf("Booking %s %s", updated.ID, result.Transition)
		if !result.Adjustment.Equal(result.Unclamped) {
			notes += fmt.Sprintf(" (clamped from %s)", result.Unclamped.StringFixed(2))
		}

		tx, w, err := r.Ledger.Record(ctx, s, ledger.Transaction{
			OwnerID:         updated.OwnerID,
			Type:            ledger.TxCommissionAdjustment,
			Amount:          decimal.Zero,
			CommissionDelta: result.Adjustment,
			Currency:        wallet.Currency,
			ReferenceID:     string(updated.ID),
			Notes:           notes,
		}, ledger.SyncIncremental)
		if err != nil {
			return nil, err
		}
		result.Transaction, result.Wallet = tx, w
	}

	if err := s.SaveBooking(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}
	return result, nil
}

// commission is the booking's commission in the wallet currency. Cancelled
// bookings carry none.
func (r *Reconciler) commission(ctx context.Context, b ledger.Booking, p *ledger.Property, walletCurrency ledger.Currency) (decimal.Decimal, error) {
	if b.Status == ledger.BookingCancelled {
		return decimal.Zero, nil
	}
	out, err := r.Calculator.ForBooking(ctx, b, p, walletCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Commission, nil
}

// Adjust applies the transition table.
func Adjust(oldParty, newParty ledger.PaymentParty, oldCommission, newCommission decimal.Decimal) (Transition, decimal.Decimal) {
	switch {
	case oldParty == ledger.PaidToOwner && newParty == ledger.PaidToCompany:
		return OwnerToCompany, oldCommission.Neg()
	case oldParty == ledger.PaidToCompany && newParty == ledger.PaidToOwner:
		return CompanyToOwner, newCommission
	case oldParty == ledger.PaidToOwner && newParty == ledger.PaidToOwner:
		return OwnerToOwner, newCommission.Sub(oldCommission)
	default:
		return CompanyToCompany, decimal.Zero
	}
}

// Clamp limits a negative adjustment so payable + adjustment >= 0.
func Clamp(payable, adjustment decimal.Decimal) decimal.Decimal {
	if payable.Add(adjustment).IsNegative() {
		if payable.IsNegative() {
			return decimal.Zero
		}
		return payable.Neg()
	}
	return adjustment
}

func affectsCommission(old, updated ledger.Booking) bool {
	return old.PaymentReceivedBy != updated.PaymentReceivedBy ||
		old.Currency != updated.Currency ||
		old.PropertyID != updated.PropertyID ||
		!old.BaseAmount.Equal(updated.BaseAmount) ||
		!old.CleaningFee.Equal(updated.CleaningFee) ||
		(old.Status == ledger.BookingCancelled) != (updated.Status == ledger.BookingCancelled)
}

func validateBooking(b ledger.Booking) error {
	switch {
	case b.ID == "":
		return &ledger.ValidationError{Field: "id", Message: "is required"}
	case b.OwnerID == "":
		return &ledger.ValidationError{Field: "owner_id", Message: "is required"}
	case b.PropertyID == "":
		return &ledger.ValidationError{Field: "property_id", Message: "is required"}
	case !b.PaymentReceivedBy.Valid():
		return &ledger.ValidationError{Field: "payment_received_by", Message: "must be OWNER or COMPANY"}
	case !b.Currency.Valid():
		return &ledger.ValidationError{Field: "currency", Message: "invalid currency code " + string(b.Currency), Err: ledger.ErrInvalidCurrency}
	case b.BaseAmount.IsNegative() || b.CleaningFee.IsNegative():
		return &ledger.ValidationError{Field: "base_amount", Message: "amounts must not be negative", Err: ledger.ErrInvalidAmount}
	}
	return nil
}
