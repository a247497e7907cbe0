/*
payments.go - Money-moving operations on an owner's wallet

PURPOSE:
  The three write paths callers use directly:
  - PayCommission: owner pays down the commission they owe the company
  - PayBalance:    owner pays down a negative cash balance
  - CreateTransaction: manual ledger entry followed by a full resync

FLOW (all three):
  validate input ──▶ WithTx(owner) ──▶ load wallet ──▶ check ceiling
                                   ──▶ Record() ──▶ commit

  Validation failures are returned before any unit is opened. Ceiling
  failures are returned from inside the unit, so nothing is written.

ROUNDING:
  Requested amounts and the wallet figures they are checked against are
  both rounded to 2 dp before comparison.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/metrics"
)

// =============================================================================
// REQUESTS / RESULTS
// =============================================================================

type PaymentRequest struct {
	OwnerID        OwnerID
	Amount         decimal.Decimal
	Currency       Currency
	Reference      string
	Notes          string
	IdempotencyKey string
	Actor          UserID
}

func (r PaymentRequest) validate() error {
	if r.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !r.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero", Err: ErrInvalidAmount}
	}
	if !r.Currency.Valid() {
		return &ValidationError{Field: "currency", Message: "invalid currency code " + string(r.Currency), Err: ErrInvalidCurrency}
	}
	return nil
}

func (r PaymentRequest) notes(fallback string) string {
	notes := r.Notes
	if notes == "" {
		notes = fallback
	}
	if r.Reference != "" {
		notes += " (ref: " + r.Reference + ")"
	}
	return notes
}

type PaymentResult struct {
	Wallet      Wallet
	Transaction Transaction
}

type TransactionRequest struct {
	OwnerID        OwnerID
	Type           TransactionType
	Amount         decimal.Decimal
	Currency       Currency
	ReferenceID    string
	Notes          string
	Date           time.Time
	IdempotencyKey string
	Actor          UserID
}

func (r TransactionRequest) validate() error {
	if r.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", r.Type)}
	}
	if r.Amount.IsZero() {
		return &ValidationError{Field: "amount", Message: "must not be zero", Err: ErrInvalidAmount}
	}
	if !r.Currency.Valid() {
		return &ValidationError{Field: "currency", Message: "invalid currency code " + string(r.Currency), Err: ErrInvalidCurrency}
	}
	return nil
}

// =============================================================================
// COMMISSION PAYMENT
// =============================================================================

// PayCommission records the owner paying amount towards commissionsPayable.
// The amount is rounded to cents before the ceiling check; anything still
// above the rounded payable is rejected with *InsufficientCommissionError.
func (l *Ledger) PayCommission(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := req.validate(); err != nil {
		metrics.RecordPaymentRejected("commission", "validation")
		return nil, err
	}

	var result *PaymentResult
	err := l.Store.WithTx(ctx, req.OwnerID, func(s Store) error {
		wallet, err := l.GetOrCreateWallet(ctx, s, req.OwnerID)
		if err != nil {
			return err
		}

		amount, err := l.amountIn(ctx, req.Amount, req.Currency, wallet.Currency)
		if err != nil {
			return err
		}

		payable := Round(wallet.CommissionsPayable)
		if payable.LessThan(amount) {
			return &InsufficientCommissionError{
				OwnerID:   req.OwnerID,
				Requested: amount,
				Available: payable,
				Shortfall: amount.Sub(payable),
				Currency:  wallet.Currency,
			}
		}

		tx, w, err := l.Record(ctx, s, Transaction{
			OwnerID:         req.OwnerID,
			Type:            TxCommissionPayment,
			Amount:          amount.Neg(),
			CommissionDelta: amount.Neg(),
			Currency:        wallet.Currency,
			Notes:           req.notes("Commission payment"),
			IdempotencyKey:  req.IdempotencyKey,
			CreatedBy:       req.Actor,
		}, SyncIncremental)
		if err != nil {
			return err
		}

		result = &PaymentResult{Wallet: *w, Transaction: *tx}
		return nil
	})
	if err != nil {
		metrics.RecordPaymentRejected("commission", rejectionReason(err))
		return nil, err
	}

	l.Log.Info().
		Str("owner_id", string(req.OwnerID)).
		Str("amount", result.Transaction.Amount.Neg().StringFixed(2)).
		Str("commissions_payable", result.Wallet.CommissionsPayable.StringFixed(2)).
		Msg("Commission payment recorded")
	return result, nil
}

// =============================================================================
// BALANCE PAYMENT
// =============================================================================

// PayBalance records the owner paying down a negative balance. The amount
// may not exceed the debt; oversize requests are rejected, never clamped.
func (l *Ledger) PayBalance(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := req.validate(); err != nil {
		metrics.RecordPaymentRejected("balance", "validation")
		return nil, err
	}

	var result *PaymentResult
	err := l.Store.WithTx(ctx, req.OwnerID, func(s Store) error {
		wallet, err := l.GetOrCreateWallet(ctx, s, req.OwnerID)
		if err != nil {
			return err
		}

		amount, err := l.amountIn(ctx, req.Amount, req.Currency, wallet.Currency)
		if err != nil {
			return err
		}

		balance := Round(wallet.CurrentBalance)
		if !balance.IsNegative() {
			return fmt.Errorf("%w: current balance is %s %s", ErrNoOutstandingBalance, balance.StringFixed(2), wallet.Currency)
		}

		maxPayable := balance.Neg()
		if amount.GreaterThan(maxPayable) {
			return &ExceedsOutstandingError{
				OwnerID:    req.OwnerID,
				Requested:  amount,
				MaxPayable: maxPayable,
				Currency:   wallet.Currency,
			}
		}

		tx, w, err := l.Record(ctx, s, Transaction{
			OwnerID:        req.OwnerID,
			Type:           TxManualAdjustment,
			Amount:         amount,
			Currency:       wallet.Currency,
			Notes:          req.notes("Balance payment"),
			IdempotencyKey: req.IdempotencyKey,
			CreatedBy:      req.Actor,
		}, SyncIncremental)
		if err != nil {
			return err
		}

		result = &PaymentResult{Wallet: *w, Transaction: *tx}
		return nil
	})
	if err != nil {
		metrics.RecordPaymentRejected("balance", rejectionReason(err))
		return nil, err
	}

	l.Log.Info().
		Str("owner_id", string(req.OwnerID)).
		Str("amount", result.Transaction.Amount.StringFixed(2)).
		Str("current_balance", result.Wallet.CurrentBalance.StringFixed(2)).
		Msg("Balance payment recorded")
	return result, nil
}

// =============================================================================
// MANUAL TRANSACTION
// =============================================================================

// CreateTransaction appends a manual entry and resyncs the wallet from the
// full ledger.
func (l *Ledger) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var created *Transaction
	err := l.Store.WithTx(ctx, req.OwnerID, func(s Store) error {
		tx, _, err := l.Record(ctx, s, Transaction{
			OwnerID:        req.OwnerID,
			Type:           req.Type,
			Amount:         req.Amount,
			Currency:       req.Currency,
			ReferenceID:    req.ReferenceID,
			Notes:          strings.TrimSpace(req.Notes),
			Date:           req.Date,
			IdempotencyKey: req.IdempotencyKey,
			CreatedBy:      req.Actor,
		}, SyncFull)
		if err != nil {
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// amountIn converts a requested amount to the wallet currency, rounded.
func (l *Ledger) amountIn(ctx context.Context, amount decimal.Decimal, from, to Currency) (decimal.Decimal, error) {
	if from == to {
		return Round(amount), nil
	}
	if l.Converter == nil {
		return decimal.Zero, fmt.Errorf("no converter configured for %s -> %s", from, to)
	}
	converted, err := l.Converter.Convert(ctx, amount, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(converted), nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCommission):
		return "insufficient_commission"
	case errors.Is(err, ErrNoOutstandingBalance):
		return "no_outstanding_balance"
	case errors.Is(err, ErrExceedsOutstanding):
		return "exceeds_outstanding"
	case IsClientError(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	default:
		return "internal"
	}
}
