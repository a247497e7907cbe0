/*
store.go - Persistence interfaces for the ledger, wallets, records and statements

PURPOSE:
  Defines the interface between the ledger logic and the database. Every
  ledger operation receives its store explicitly; nothing reaches a shared
  global client.

KEY INTERFACES:
  TransactionStore: Append-only owner transactions
  WalletStore:      Materialized wallet snapshots
  RecordStore:      Owners, properties, bookings, expenses
  StatementStore:   Statements and their lines
  TxStore:          Atomic per-owner unit of work

APPEND-ONLY CONTRACT:
  TransactionStore has no Update() or Delete(). Corrections are new
  transactions. Statements are writable only while DRAFT.

ATOMIC UNITS:
  WithTx(ctx, ownerID, fn) runs fn holding the owner's lock. If fn returns
  an error every write made through the Store passed to fn is rolled back.
  Two units for the same owner never interleave, which closes the
  read-modify-write race on wallet fields.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and demos
  - store/sqlite: SQLite via sqlx

SEE ALSO:
  - ledger.go: Higher-level operations using Store
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interfaces for persistence
// =============================================================================

// TransactionStore persists ledger entries.
// IMPORTANT: APPEND-ONLY. No Update, No Delete. Ever.
type TransactionStore interface {
	// AppendTransaction persists a transaction. Returns ErrDuplicateIdempotencyKey
	// if its idempotency key already exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// ListTransactions returns all transactions for an owner ordered by Date, then CreatedAt.
	ListTransactions(ctx context.Context, ownerID OwnerID) ([]Transaction, error)

	// TransactionExists checks if an idempotency key was already used.
	TransactionExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// WalletStore persists wallet snapshots. One wallet per owner.
type WalletStore interface {
	// GetWallet returns nil, nil when the owner has no wallet yet.
	GetWallet(ctx context.Context, ownerID OwnerID) (*Wallet, error)
	SaveWallet(ctx context.Context, w Wallet) error
	ListWallets(ctx context.Context) ([]Wallet, error)
}

type BookingFilter struct {
	OwnerID *OwnerID
	Status  *BookingStatus
	// CheckIn window, inclusive by day
	CheckIn *Period
}

type ExpenseFilter struct {
	OwnerID *OwnerID
	Date    *Period
}

// RecordStore gives access to the operational records money is derived from.
// Get methods return nil, nil when the record does not exist.
type RecordStore interface {
	GetOwner(ctx context.Context, id OwnerID) (*Owner, error)
	ListOwners(ctx context.Context) ([]Owner, error)
	SaveOwner(ctx context.Context, o Owner) error

	GetProperty(ctx context.Context, id PropertyID) (*Property, error)
	SaveProperty(ctx context.Context, p Property) error

	GetBooking(ctx context.Context, id BookingID) (*Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	SaveBooking(ctx context.Context, b Booking) error

	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error)
	SaveExpense(ctx context.Context, e Expense) error
}

type StatementFilter struct {
	OwnerID *OwnerID
	Status  *StatementStatus
}

// StatementStore persists statements with their lines.
type StatementStore interface {
	// SaveStatement inserts or replaces a statement and its lines. Returns
	// ErrStatementFinalized if the stored statement is already FINALIZED.
	SaveStatement(ctx context.Context, st Statement) error

	// GetStatement returns nil, nil when absent.
	GetStatement(ctx context.Context, id StatementID) (*Statement, error)
	ListStatements(ctx context.Context, filter StatementFilter) ([]Statement, error)
}

// Store is everything a ledger operation can touch.
type Store interface {
	TransactionStore
	WalletStore
	RecordStore
	StatementStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with per-owner atomic units.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction scoped to ownerID.
	// If fn returns error, every write is rolled back.
	// If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, ownerID OwnerID, fn func(Store) error) error
}

// Clock returns the current time. Overridable in tests.
type Clock func() time.Time
