/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is / errors.As; the HTTP layer maps the
  categories to status codes.

ERROR CATEGORIES:
  1. Validation - rejected before any write
  2. Insufficient funds/liability - rejected with the actual ceiling
  3. Not found - owner/statement/booking/property absent
  4. Conflict - statement already finalized, booking exists, duplicate idempotency key
  5. Infrastructure - store failures, wrapped and surfaced as-is

SEE ALSO:
  - payments.go: Produces the funds errors
  - api/handlers.go: Maps categories to HTTP status
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")

	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidPeriod   = errors.New("invalid period: end before start")

	// ErrInsufficientCommission is returned when a commission payment exceeds
	// what the owner currently owes.
	ErrInsufficientCommission = errors.New("payment exceeds commissions payable")

	// ErrNoOutstandingBalance is returned when paying a balance that is not negative.
	ErrNoOutstandingBalance = errors.New("no outstanding balance to pay")

	// ErrExceedsOutstanding is returned when a balance payment is larger than the debt.
	ErrExceedsOutstanding = errors.New("payment exceeds outstanding balance")

	ErrOwnerNotFound     = errors.New("owner not found")
	ErrPropertyNotFound  = errors.New("property not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrStatementNotFound = errors.New("statement not found")

	// ErrBookingExists is returned when creating a booking whose id is taken.
	ErrBookingExists = errors.New("booking already exists")

	// ErrStatementFinalized is returned when writing to a finalized statement.
	ErrStatementFinalized = errors.New("statement already finalized")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. Expected on client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when a wallet version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional more specific sentinel
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// InsufficientCommissionError reports how much commission is actually payable.
type InsufficientCommissionError struct {
	OwnerID   OwnerID
	Requested decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
	Currency  Currency
}

func (e *InsufficientCommissionError) Error() string {
	return fmt.Sprintf("insufficient commissions payable: available %s %s, requested %s, shortfall %s",
		e.Available.StringFixed(2), e.Currency, e.Requested.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientCommissionError) Unwrap() error { return ErrInsufficientCommission }

// ExceedsOutstandingError reports the maximum amount the owner may pay.
type ExceedsOutstandingError struct {
	OwnerID    OwnerID
	Requested  decimal.Decimal
	MaxPayable decimal.Decimal
	Currency   Currency
}

func (e *ExceedsOutstandingError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding balance: max payable %s %s",
		e.Requested.StringFixed(2), e.MaxPayable.StringFixed(2), e.Currency)
}

func (e *ExceedsOutstandingError) Unwrap() error { return ErrExceedsOutstanding }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a business rule rejection.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInsufficientCommission) ||
		errors.Is(err, ErrNoOutstandingBalance) ||
		errors.Is(err, ErrExceedsOutstanding)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOwnerNotFound) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrStatementNotFound)
}

// IsConflict returns true if the write collided with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStatementFinalized) ||
		errors.Is(err, ErrBookingExists) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrConcurrentModification)
}
