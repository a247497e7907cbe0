/*
Package ledger provides the owner ledger engine.

PURPOSE:
  Tracks, per property owner, a running cash balance and a running
  commission liability. Both are derived from an append-only transaction
  log. The wallet is a materialized projection of that log and can always
  be rebuilt from it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Currency: ISO-style 3-letter code
  - Owner/Property/Booking/Expense: the records money is derived from
  - Transaction: an immutable, signed ledger entry
  - Wallet: the materialized (currentBalance, commissionsPayable) snapshot

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only offset
  2. Precision: Uses decimal.Decimal, rounded to 2 dp at currency and ledger boundaries
  3. Type Safety: Strong typing for IDs prevents mixing owner/property IDs
  4. Derivability: Wallet == Project(transactions) outside an in-flight write

USAGE:
  tx := ledger.Transaction{
      OwnerID:  "owner-1",
      Type:     ledger.TxManualAdjustment,
      Amount:   decimal.NewFromInt(-50),
      Currency: "GHS",
  }

SEE ALSO:
  - ledger.go: Recording transactions and projecting wallets
  - payments.go: Commission and balance payments
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type PropertyID string
type BookingID string
type ExpenseID string
type StatementID string
type TransactionID string
type UserID string

// =============================================================================
// CURRENCY
// =============================================================================

// Currency is an ISO-style currency code, e.g. "GHS".
type Currency string

// Valid reports whether c is a 3-letter upper-case code.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseCurrency normalizes s (trim, upper-case) and validates it.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "currency", Message: "invalid currency code " + s, Err: ErrInvalidCurrency}
	}
	return c, nil
}

// =============================================================================
// RECORDS - Owners, properties, bookings, expenses
// =============================================================================

type Owner struct {
	ID                OwnerID
	Name              string
	Email             string
	PreferredCurrency Currency
	CreatedAt         time.Time
}

type Property struct {
	ID       PropertyID
	OwnerID  OwnerID
	Name     string
	Currency Currency

	// DefaultCommissionRate is a fraction (0.15 = 15%). Nil means the
	// company default applies.
	DefaultCommissionRate *decimal.Decimal
}

// PaymentParty identifies who physically received the guest's payment.
type PaymentParty string

const (
	PaidToOwner   PaymentParty = "OWNER"
	PaidToCompany PaymentParty = "COMPANY"
)

func (p PaymentParty) Valid() bool { return p == PaidToOwner || p == PaidToCompany }

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCheckedIn BookingStatus = "CHECKED_IN"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID                BookingID
	PropertyID        PropertyID
	OwnerID           OwnerID
	GuestName         string
	Currency          Currency
	BaseAmount        decimal.Decimal
	CleaningFee       decimal.Decimal
	PlatformFees      decimal.Decimal
	Taxes             decimal.Decimal
	PaymentReceivedBy PaymentParty
	Status            BookingStatus
	CheckInDate       time.Time
	CheckOutDate      time.Time
	UpdatedAt         time.Time
}

// GrossRevenue is the commission base: base amount plus cleaning fee.
// Platform fees and taxes are excluded.
func (b Booking) GrossRevenue() decimal.Decimal {
	return b.BaseAmount.Add(b.CleaningFee)
}

type ExpensePayer string

const (
	PaidByCompany ExpensePayer = "company"
	PaidByOwner   ExpensePayer = "owner"
	PaidByVendor  ExpensePayer = "vendor"
)

type Expense struct {
	ID          ExpenseID
	PropertyID  PropertyID
	OwnerID     OwnerID
	Currency    Currency
	Amount      decimal.Decimal
	PaidBy      ExpensePayer
	Category    string
	Description string
	Date        time.Time
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxCommissionPayment    TransactionType = "COMMISSION_PAYMENT"    // Owner paid down commission owed
	TxManualAdjustment     TransactionType = "MANUAL_ADJUSTMENT"     // Admin entry, balance payments
	TxStatementNet         TransactionType = "STATEMENT_NET"         // Posted when a statement is finalized
	TxCommissionAdjustment TransactionType = "COMMISSION_ADJUSTMENT" // Liability change from a booking edit
	TxPayout               TransactionType = "PAYOUT"                // Company paid the owner out
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxCommissionPayment, TxManualAdjustment, TxStatementNet, TxCommissionAdjustment, TxPayout:
		return true
	}
	return false
}

// Transaction is one immutable monetary fact for an owner.
//
// Amount moves currentBalance. CommissionDelta moves commissionsPayable.
// Both are expressed in the owner's wallet currency.
type Transaction struct {
	ID              TransactionID
	OwnerID         OwnerID
	Type            TransactionType
	Amount          decimal.Decimal
	CommissionDelta decimal.Decimal
	Currency        Currency
	ReferenceID     string
	Notes           string
	Date            time.Time
	IdempotencyKey  string

	CreatedBy UserID
	CreatedAt time.Time
}

// =============================================================================
// WALLET - Materialized projection of the ledger
// =============================================================================

type Wallet struct {
	ID                 string
	OwnerID            OwnerID
	Currency           Currency
	CurrentBalance     decimal.Decimal
	CommissionsPayable decimal.Decimal
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Apply adds a transaction's deltas to the wallet (incremental sync).
func (w *Wallet) Apply(tx Transaction) {
	w.CurrentBalance = w.CurrentBalance.Add(tx.Amount)
	w.CommissionsPayable = w.CommissionsPayable.Add(tx.CommissionDelta)
}

// Projection is the deterministic value of a wallet given its ledger.
type Projection struct {
	Balance            decimal.Decimal
	CommissionsPayable decimal.Decimal
}

// Project sums a transaction list. It is the authoritative definition of
// what a wallet must contain.
func Project(txs []Transaction) Projection {
	p := Projection{Balance: decimal.Zero, CommissionsPayable: decimal.Zero}
	for _, tx := range txs {
		p.Balance = p.Balance.Add(tx.Amount)
		p.CommissionsPayable = p.CommissionsPayable.Add(tx.CommissionDelta)
	}
	return p
}

// Matches reports whether the wallet equals the projection.
func (p Projection) Matches(w Wallet) bool {
	return p.Balance.Equal(w.CurrentBalance) && p.CommissionsPayable.Equal(w.CommissionsPayable)
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Round rounds to 2 decimal places. Applied whenever a value crosses a
// currency boundary or is written to the ledger.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
