/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStore (transactions, wallets, records, statements)
  and settings.Store on one SQLite database through sqlx.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections are new transactions

KEY TABLES:
  transactions:    Immutable ledger of all owner money movement
  wallets:         Versioned projection, one row per owner
  owners, properties, bookings, expenses: Operational records
  statements:      Statement headers; statement_lines hold their lines
  settings:        Key/value configuration (branding, FX rates)

MONEY AND TIME:
  Decimals are stored as TEXT so no float rounding ever touches them.
  Times are stored as fixed-width UTC strings, which sort lexically in
  time order.

CONCURRENCY:
  The DSN sets _txlock=immediate, so WithTx takes SQLite's write lock at
  BEGIN and two units never interleave. WAL lets pool readers (settings
  lookups during FX conversion, for instance) proceed while a unit is open.
  A ":memory:" database lives on a single connection, so it only suits
  callers that never read through the pool inside a unit.

USAGE:
  store, err := sqlite.New("./data/owner_ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store, converter, log)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/ledger"
)

// timeFormat is RFC3339 with fixed nanoseconds; lexical order == time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sqlx.DB
}

// New opens (or creates) the database at dbPath and migrates it.
// ":memory:" runs on a single connection, so FX settings reads cannot
// happen while a unit is open; use a file for anything multi-currency.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing handle without migrating it.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		preferred_currency TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		default_commission_rate TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties(owner_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		guest_name TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		cleaning_fee TEXT NOT NULL,
		platform_fees TEXT NOT NULL,
		taxes TEXT NOT NULL,
		payment_received_by TEXT NOT NULL,
		status TEXT NOT NULL,
		check_in_date TEXT NOT NULL,
		check_out_date TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Statement generation reads bookings by owner and check-in window
	CREATE INDEX IF NOT EXISTS idx_bookings_owner_checkin ON bookings(owner_id, check_in_date);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_by TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_owner_date ON expenses(owner_id, date);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		commission_delta TEXT NOT NULL,
		currency TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Wallet projection and resync (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_date
		ON transactions(owner_id, date, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id <> '';

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL UNIQUE,
		currency TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		commissions_payable TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		display_currency TEXT NOT NULL,
		gross_revenue TEXT NOT NULL,
		total_expenses TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		net_to_owner TEXT NOT NULL,
		company_revenue TEXT NOT NULL,
		owner_revenue TEXT NOT NULL,
		company_commission TEXT NOT NULL,
		owner_commission TEXT NOT NULL,
		company_paid_expenses TEXT NOT NULL,
		owner_paid_expenses TEXT NOT NULL,
		opening_balance TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		pdf_url TEXT NOT NULL DEFAULT '',
		finalized_at TEXT,
		finalized_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_statements_owner_period ON statements(owner_id, period_start);

	CREATE TABLE IF NOT EXISTS statement_lines (
		id TEXT PRIMARY KEY,
		statement_id TEXT NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		booking_id TEXT,
		expense_id TEXT,
		date TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_statement_lines_statement ON statement_lines(statement_id, position);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The write lock is
// database-wide, which subsumes the per-owner guarantee.
func (s *Store) WithTx(ctx context.Context, _ ledger.OwnerID, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// queries runs every statement against either the pool or an open tx.
type queries struct {
	q sqlx.ExtContext
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type transactionRow struct {
	ID              string          `db:"id"`
	OwnerID         string          `db:"owner_id"`
	Type            string          `db:"type"`
	Amount          decimal.Decimal `db:"amount"`
	CommissionDelta decimal.Decimal `db:"commission_delta"`
	Currency        string          `db:"currency"`
	ReferenceID     string          `db:"reference_id"`
	Notes           string          `db:"notes"`
	Date            string          `db:"date"`
	IdempotencyKey  sql.NullString  `db:"idempotency_key"`
	CreatedBy       string          `db:"created_by"`
	CreatedAt       string          `db:"created_at"`
}

func (r transactionRow) toTransaction() ledger.Transaction {
	return ledger.Transaction{
		ID:              ledger.TransactionID(r.ID),
		OwnerID:         ledger.OwnerID(r.OwnerID),
		Type:            ledger.TransactionType(r.Type),
		Amount:          r.Amount,
		CommissionDelta: r.CommissionDelta,
		Currency:        ledger.Currency(r.Currency),
		ReferenceID:     r.ReferenceID,
		Notes:           r.Notes,
		Date:            parseTime(r.Date),
		IdempotencyKey:  r.IdempotencyKey.String,
		CreatedBy:       ledger.UserID(r.CreatedBy),
		CreatedAt:       parseTime(r.CreatedAt),
	}
}

// AppendTransaction adds a transaction to the ledger.
func (q queries) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, owner_id, type, amount, commission_delta, currency, reference_id, notes,
		 date, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.OwnerID), string(tx.Type),
		tx.Amount.String(), tx.CommissionDelta.String(), string(tx.Currency),
		tx.ReferenceID, tx.Notes, formatTime(tx.Date),
		nullString(tx.IdempotencyKey), string(tx.CreatedBy), formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "transactions.idempotency_key") {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns an owner's ledger by Date, then CreatedAt, then insertion.
func (q queries) ListTransactions(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	var rows []transactionRow
	err := sqlx.SelectContext(ctx, q.q, &rows, `
		SELECT id, owner_id, type, amount, commission_delta, currency, reference_id, notes,
		       date, idempotency_key, created_by, created_at
		FROM transactions
		WHERE owner_id = ?
		ORDER BY date ASC, created_at ASC, rowid ASC`,
		string(ownerID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	txs := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.toTransaction())
	}
	return txs, nil
}

func (q queries) TransactionExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q.q, &count,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?", idempotencyKey)
	return count > 0, err
}

// =============================================================================
// WALLETS
// =============================================================================

type walletRow struct {
	ID                 string          `db:"id"`
	OwnerID            string          `db:"owner_id"`
	Currency           string          `db:"currency"`
	CurrentBalance     decimal.Decimal `db:"current_balance"`
	CommissionsPayable decimal.Decimal `db:"commissions_payable"`
	Version            int64           `db:"version"`
	CreatedAt          string          `db:"created_at"`
	UpdatedAt          string          `db:"updated_at"`
}

func (r walletRow) toWallet() ledger.Wallet {
	return ledger.Wallet{
		ID:                 r.ID,
		OwnerID:            ledger.OwnerID(r.OwnerID),
		Currency:           ledger.Currency(r.Currency),
		CurrentBalance:     r.CurrentBalance,
		CommissionsPayable: r.CommissionsPayable,
		Version:            r.Version,
		CreatedAt:          parseTime(r.CreatedAt),
		UpdatedAt:          parseTime(r.UpdatedAt),
	}
}

const walletColumns = `id, owner_id, currency, current_balance, commissions_payable, version, created_at, updated_at`

func (q queries) GetWallet(ctx context.Context, ownerID ledger.OwnerID) (*ledger.Wallet, error) {
	var r walletRow
	err := sqlx.GetContext(ctx, q.q, &r, "SELECT "+walletColumns+" FROM wallets WHERE owner_id = ?", string(ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w := r.toWallet()
	return &w, nil
}

// SaveWallet stores w. An existing row is only replaced by the next
// version; anything else is ErrConcurrentModification.
func (q queries) SaveWallet(ctx context.Context, w ledger.Wallet) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE wallets
		SET currency = ?, current_balance = ?, commissions_payable = ?, version = ?, updated_at = ?
		WHERE owner_id = ? AND version = ?`,
		string(w.Currency), w.CurrentBalance.String(), w.CommissionsPayable.String(),
		w.Version, formatTime(w.UpdatedAt), string(w.OwnerID), w.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	// No row at the previous version: either the wallet is new or someone
	// else moved it on.
	_, err = q.q.ExecContext(ctx, "INSERT INTO wallets ("+walletColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		w.ID, string(w.OwnerID), string(w.Currency),
		w.CurrentBalance.String(), w.CommissionsPayable.String(), w.Version,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert wallet: %w", err)
	}
	return nil
}

func (q queries) ListWallets(ctx context.Context) ([]ledger.Wallet, error) {
	var rows []walletRow
	if err := sqlx.SelectContext(ctx, q.q, &rows, "SELECT "+walletColumns+" FROM wallets ORDER BY owner_id"); err != nil {
		return nil, err
	}
	wallets := make([]ledger.Wallet, 0, len(rows))
	for _, r := range rows {
		wallets = append(wallets, r.toWallet())
	}
	return wallets, nil
}

// =============================================================================
// OWNERS / PROPERTIES
// =============================================================================

type ownerRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	Email             string `db:"email"`
	PreferredCurrency string `db:"preferred_currency"`
	CreatedAt         string `db:"created_at"`
}

func (r ownerRow) toOwner() ledger.Owner {
	return ledger.Owner{
		ID:                ledger.OwnerID(r.ID),
		Name:              r.Name,
		Email:             r.Email,
		PreferredCurrency: ledger.Currency(r.PreferredCurrency),
		CreatedAt:         parseTime(r.CreatedAt),
	}
}

func (q queries) GetOwner(ctx context.Context, id ledger.OwnerID) (*ledger.Owner, error) {
	var r ownerRow
	err := sqlx.GetContext(ctx, q.q, &r,
		"SELECT id, name, email, preferred_currency, created_at FROM owners WHERE id = ?", string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := r.toOwner()
	return &o, nil
}

func (q queries) ListOwners(ctx context.Context) ([]ledger.Owner, error) {
	var rows []ownerRow
	if err := sqlx.SelectContext(ctx, q.q, &rows,
		"SELECT id, name, email, preferred_currency, created_at FROM owners ORDER BY id"); err != nil {
		return nil, err
	}
	owners := make([]ledger.Owner, 0, len(rows))
	for _, r := range rows {
		owners = append(owners, r.toOwner())
	}
	return owners, nil
}

func (q queries) SaveOwner(ctx context.Context, o ledger.Owner) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO owners (id, name, email, preferred_currency, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			preferred_currency = excluded.preferred_currency`,
		string(o.ID), o.Name, o.Email, string(o.PreferredCurrency), formatTime(o.CreatedAt),
	)
	return err
}

type propertyRow struct {
	ID                    string              `db:"id"`
	OwnerID               string              `db:"owner_id"`
	Name                  string              `db:"name"`
	Currency              string              `db:"currency"`
	DefaultCommissionRate decimal.NullDecimal `db:"default_commission_rate"`
}

func (q queries) GetProperty(ctx context.Context, id ledger.PropertyID) (*ledger.Property, error) {
	var r propertyRow
	err := sqlx.GetContext(ctx, q.q, &r,
		"SELECT id, owner_id, name, currency, default_commission_rate FROM properties WHERE id = ?", string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := &ledger.Property{
		ID:       ledger.PropertyID(r.ID),
		OwnerID:  ledger.OwnerID(r.OwnerID),
		Name:     r.Name,
		Currency: ledger.Currency(r.Currency),
	}
	if r.DefaultCommissionRate.Valid {
		rate := r.DefaultCommissionRate.Decimal
		p.DefaultCommissionRate = &rate
	}
	return p, nil
}

func (q queries) SaveProperty(ctx context.Context, p ledger.Property) error {
	var rate any
	if p.DefaultCommissionRate != nil {
		rate = p.DefaultCommissionRate.String()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO properties (id, owner_id, name, currency, default_commission_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			currency = excluded.currency,
			default_commission_rate = excluded.default_commission_rate`,
		string(p.ID), string(p.OwnerID), p.Name, string(p.Currency), rate,
	)
	return err
}

// =============================================================================
// BOOKINGS / EXPENSES
// =============================================================================

type bookingRow struct {
	ID                string          `db:"id"`
	PropertyID        string          `db:"property_id"`
	OwnerID           string          `db:"owner_id"`
	GuestName         string          `db:"guest_name"`
	Currency          string          `db:"currency"`
	BaseAmount        decimal.Decimal `db:"base_amount"`
	CleaningFee       decimal.Decimal `db:"cleaning_fee"`
	PlatformFees      decimal.Decimal `db:"platform_fees"`
	Taxes             decimal.Decimal `db:"taxes"`
	PaymentReceivedBy string          `db:"payment_received_by"`
	Status            string          `db:"status"`
	CheckInDate       string          `db:"check_in_date"`
	CheckOutDate      string          `db:"check_out_date"`
	UpdatedAt         string          `db:"updated_at"`
}

func (r bookingRow) toBooking() ledger.Booking {
	return ledger.Booking{
		ID:                ledger.BookingID(r.ID),
		PropertyID:        ledger.PropertyID(r.PropertyID),
		OwnerID:           ledger.OwnerID(r.OwnerID),
		GuestName:         r.GuestName,
		Currency:          ledger.Currency(r.Currency),
		BaseAmount:        r.BaseAmount,
		CleaningFee:       r.CleaningFee,
		PlatformFees:      r.PlatformFees,
		Taxes:             r.Taxes,
		PaymentReceivedBy: ledger.PaymentParty(r.PaymentReceivedBy),
		Status:            ledger.BookingStatus(r.Status),
		CheckInDate:       parseTime(r.CheckInDate),
		CheckOutDate:      parseTime(r.CheckOutDate),
		UpdatedAt:         parseTime(r.UpdatedAt),
	}
}

const bookingColumns = `id, property_id, owner_id, guest_name, currency, base_amount, cleaning_fee,
	platform_fees, taxes, payment_received_by, status, check_in_date, check_out_date, updated_at`

func (q queries) GetBooking(ctx context.Context, id ledger.BookingID) (*ledger.Booking, error) {
	var r bookingRow
	err := sqlx.GetContext(ctx, q.q, &r, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := r.toBooking()
	return &b, nil
}

func (q queries) ListBookings(ctx context.Context, f ledger.BookingFilter) ([]ledger.Booking, error) {
	var where []string
	var args []any
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, string(*f.OwnerID))
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.CheckIn != nil {
		from, to := periodBounds(*f.CheckIn)
		where = append(where, "check_in_date >= ? AND check_in_date < ?")
		args = append(args, from, to)
	}

	var rows []bookingRow
	query := "SELECT " + bookingColumns + " FROM bookings" + whereClause(where) + " ORDER BY check_in_date, id"
	if err := sqlx.SelectContext(ctx, q.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}

	bookings := make([]ledger.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, r.toBooking())
	}
	return bookings, nil
}

func (q queries) SaveBooking(ctx context.Context, b ledger.Booking) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			owner_id = excluded.owner_id,
			guest_name = excluded.guest_name,
			currency = excluded.currency,
			base_amount = excluded.base_amount,
			cleaning_fee = excluded.cleaning_fee,
			platform_fees = excluded.platform_fees,
			taxes = excluded.taxes,
			payment_received_by = excluded.payment_received_by,
			status = excluded.status,
			check_in_date = excluded.check_in_date,
			check_out_date = excluded.check_out_date,
			updated_at = excluded.updated_at`,
		string(b.ID), string(b.PropertyID), string(b.OwnerID), b.GuestName, string(b.Currency),
		b.BaseAmount.String(), b.CleaningFee.String(), b.PlatformFees.String(), b.Taxes.String(),
		string(b.PaymentReceivedBy), string(b.Status),
		formatTime(b.CheckInDate), formatTime(b.CheckOutDate), formatTime(b.UpdatedAt),
	)
	return err
}

type expenseRow struct {
	ID          string          `db:"id"`
	PropertyID  string          `db:"property_id"`
	OwnerID     string          `db:"owner_id"`
	Currency    string          `db:"currency"`
	Amount      decimal.Decimal `db:"amount"`
	PaidBy      string          `db:"paid_by"`
	Category    string          `db:"category"`
	Description string          `db:"description"`
	Date        string          `db:"date"`
}

const expenseColumns = `id, property_id, owner_id, currency, amount, paid_by, category, description, date`

func (q queries) ListExpenses(ctx context.Context, f ledger.ExpenseFilter) ([]ledger.Expense, error) {
	var where []string
	var args []any
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, string(*f.OwnerID))
	}
	if f.Date != nil {
		from, to := periodBounds(*f.Date)
		where = append(where, "date >= ? AND date < ?")
		args = append(args, from, to)
	}

	var rows []expenseRow
	query := "SELECT " + expenseColumns + " FROM expenses" + whereClause(where) + " ORDER BY date, id"
	if err := sqlx.SelectContext(ctx, q.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}

	expenses := make([]ledger.Expense, 0, len(rows))
	for _, r := range rows {
		expenses = append(expenses, ledger.Expense{
			ID:          ledger.ExpenseID(r.ID),
			PropertyID:  ledger.PropertyID(r.PropertyID),
			OwnerID:     ledger.OwnerID(r.OwnerID),
			Currency:    ledger.Currency(r.Currency),
			Amount:      r.Amount,
			PaidBy:      ledger.ExpensePayer(r.PaidBy),
			Category:    r.Category,
			Description: r.Description,
			Date:        parseTime(r.Date),
		})
	}
	return expenses, nil
}

func (q queries) SaveExpense(ctx context.Context, e ledger.Expense) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			owner_id = excluded.owner_id,
			currency = excluded.currency,
			amount = excluded.amount,
			paid_by = excluded.paid_by,
			category = excluded.category,
			description = excluded.description,
			date = excluded.date`,
		string(e.ID), string(e.PropertyID), string(e.OwnerID), string(e.Currency),
		e.Amount.String(), string(e.PaidBy), e.Category, e.Description, formatTime(e.Date),
	)
	return err
}

// =============================================================================
// STATEMENTS
// =============================================================================

type statementRow struct {
	ID                  string          `db:"id"`
	OwnerID             string          `db:"owner_id"`
	PeriodStart         string          `db:"period_start"`
	PeriodEnd           string          `db:"period_end"`
	Status              string          `db:"status"`
	DisplayCurrency     string          `db:"display_currency"`
	GrossRevenue        decimal.Decimal `db:"gross_revenue"`
	TotalExpenses       decimal.Decimal `db:"total_expenses"`
	CommissionAmount    decimal.Decimal `db:"commission_amount"`
	NetToOwner          decimal.Decimal `db:"net_to_owner"`
	CompanyRevenue      decimal.Decimal `db:"company_revenue"`
	OwnerRevenue        decimal.Decimal `db:"owner_revenue"`
	CompanyCommission   decimal.Decimal `db:"company_commission"`
	OwnerCommission     decimal.Decimal `db:"owner_commission"`
	CompanyPaidExpenses decimal.Decimal `db:"company_paid_expenses"`
	OwnerPaidExpenses   decimal.Decimal `db:"owner_paid_expenses"`
	OpeningBalance      decimal.Decimal `db:"opening_balance"`
	ClosingBalance      decimal.Decimal `db:"closing_balance"`
	PDFURL              string          `db:"pdf_url"`
	FinalizedAt         sql.NullString  `db:"finalized_at"`
	FinalizedBy         sql.NullString  `db:"finalized_by"`
	CreatedAt           string          `db:"created_at"`
	UpdatedAt           string          `db:"updated_at"`
}

func (r statementRow) toStatement() ledger.Statement {
	st := ledger.Statement{
		ID:                  ledger.StatementID(r.ID),
		OwnerID:             ledger.OwnerID(r.OwnerID),
		PeriodStart:         parseTime(r.PeriodStart),
		PeriodEnd:           parseTime(r.PeriodEnd),
		Status:              ledger.StatementStatus(r.Status),
		DisplayCurrency:     ledger.Currency(r.DisplayCurrency),
		GrossRevenue:        r.GrossRevenue,
		TotalExpenses:       r.TotalExpenses,
		CommissionAmount:    r.CommissionAmount,
		NetToOwner:          r.NetToOwner,
		CompanyRevenue:      r.CompanyRevenue,
		OwnerRevenue:        r.OwnerRevenue,
		CompanyCommission:   r.CompanyCommission,
		OwnerCommission:     r.OwnerCommission,
		CompanyPaidExpenses: r.CompanyPaidExpenses,
		OwnerPaidExpenses:   r.OwnerPaidExpenses,
		OpeningBalance:      r.OpeningBalance,
		ClosingBalance:      r.ClosingBalance,
		PDFURL:              r.PDFURL,
		CreatedAt:           parseTime(r.CreatedAt),
		UpdatedAt:           parseTime(r.UpdatedAt),
	}
	if r.FinalizedAt.Valid {
		t := parseTime(r.FinalizedAt.String)
		st.FinalizedAt = &t
	}
	if r.FinalizedBy.Valid {
		by := ledger.UserID(r.FinalizedBy.String)
		st.FinalizedBy = &by
	}
	return st
}

const statementColumns = `id, owner_id, period_start, period_end, status, display_currency,
	gross_revenue, total_expenses, commission_amount, net_to_owner,
	company_revenue, owner_revenue, company_commission, owner_commission,
	company_paid_expenses, owner_paid_expenses, opening_balance, closing_balance,
	pdf_url, finalized_at, finalized_by, created_at, updated_at`

type lineRow struct {
	ID          string          `db:"id"`
	StatementID string          `db:"statement_id"`
	Type        string          `db:"type"`
	Description string          `db:"description"`
	Amount      decimal.Decimal `db:"amount"`
	BookingID   sql.NullString  `db:"booking_id"`
	ExpenseID   sql.NullString  `db:"expense_id"`
	Date        string          `db:"date"`
	Position    int             `db:"position"`
}

// SaveStatement inserts or replaces a statement and all its lines.
// A FINALIZED statement is never replaced.
func (q queries) SaveStatement(ctx context.Context, st ledger.Statement) error {
	var status string
	err := sqlx.GetContext(ctx, q.q, &status, "SELECT status FROM statements WHERE id = ?", string(st.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to load statement: %w", err)
	case ledger.StatementStatus(status) == ledger.StatementFinalized:
		return ledger.ErrStatementFinalized
	}

	var finalizedAt, finalizedBy any
	if st.FinalizedAt != nil {
		finalizedAt = formatTime(*st.FinalizedAt)
	}
	if st.FinalizedBy != nil {
		finalizedBy = string(*st.FinalizedBy)
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO statements (`+statementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(st.ID), string(st.OwnerID), formatTime(st.PeriodStart), formatTime(st.PeriodEnd),
		string(st.Status), string(st.DisplayCurrency),
		st.GrossRevenue.String(), st.TotalExpenses.String(), st.CommissionAmount.String(), st.NetToOwner.String(),
		st.CompanyRevenue.String(), st.OwnerRevenue.String(), st.CompanyCommission.String(), st.OwnerCommission.String(),
		st.CompanyPaidExpenses.String(), st.OwnerPaidExpenses.String(),
		st.OpeningBalance.String(), st.ClosingBalance.String(),
		st.PDFURL, finalizedAt, finalizedBy, formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save statement: %w", err)
	}

	// Lines are regenerated wholesale with the draft
	if _, err := q.q.ExecContext(ctx, "DELETE FROM statement_lines WHERE statement_id = ?", string(st.ID)); err != nil {
		return fmt.Errorf("failed to clear statement lines: %w", err)
	}
	for _, line := range st.Lines {
		var bookingID, expenseID any
		if line.BookingID != nil {
			bookingID = string(*line.BookingID)
		}
		if line.ExpenseID != nil {
			expenseID = string(*line.ExpenseID)
		}
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO statement_lines (id, statement_id, type, description, amount, booking_id, expense_id, date, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID, string(st.ID), string(line.Type), line.Description, line.Amount.String(),
			bookingID, expenseID, formatTime(line.Date), line.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to save statement line: %w", err)
		}
	}
	return nil
}

func (q queries) GetStatement(ctx context.Context, id ledger.StatementID) (*ledger.Statement, error) {
	var r statementRow
	err := sqlx.GetContext(ctx, q.q, &r, "SELECT "+statementColumns+" FROM statements WHERE id = ?", string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st := r.toStatement()
	if st.Lines, err = q.lines(ctx, st.ID); err != nil {
		return nil, err
	}
	return &st, nil
}

func (q queries) ListStatements(ctx context.Context, f ledger.StatementFilter) ([]ledger.Statement, error) {
	var where []string
	var args []any
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, string(*f.OwnerID))
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}

	var rows []statementRow
	query := "SELECT " + statementColumns + " FROM statements" + whereClause(where) + " ORDER BY period_start, id"
	if err := sqlx.SelectContext(ctx, q.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}

	statements := make([]ledger.Statement, 0, len(rows))
	for _, r := range rows {
		st := r.toStatement()
		lines, err := q.lines(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		st.Lines = lines
		statements = append(statements, st)
	}
	return statements, nil
}

func (q queries) lines(ctx context.Context, id ledger.StatementID) ([]ledger.StatementLine, error) {
	var rows []lineRow
	err := sqlx.SelectContext(ctx, q.q, &rows, `
		SELECT id, statement_id, type, description, amount, booking_id, expense_id, date, position
		FROM statement_lines WHERE statement_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query statement lines: %w", err)
	}

	lines := make([]ledger.StatementLine, 0, len(rows))
	for _, r := range rows {
		line := ledger.StatementLine{
			ID:          r.ID,
			StatementID: ledger.StatementID(r.StatementID),
			Type:        ledger.LineType(r.Type),
			Description: r.Description,
			Amount:      r.Amount,
			Date:        parseTime(r.Date),
			Position:    r.Position,
		}
		if r.BookingID.Valid {
			b := ledger.BookingID(r.BookingID.String)
			line.BookingID = &b
		}
		if r.ExpenseID.Valid {
			e := ledger.ExpenseID(r.ExpenseID.String)
			line.ExpenseID = &e
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// =============================================================================
// SETTINGS (settings.Store interface)
// =============================================================================

// GetSetting returns nil, nil when the key is unset.
func (q queries) GetSetting(ctx context.Context, key string) (*string, error) {
	var value string
	err := sqlx.GetContext(ctx, q.q, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (q queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	return err
}

func (q queries) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := q.q.QueryxContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Rows written by hand or older tooling
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

// periodBounds returns [start, end+1day) as comparable strings.
func periodBounds(p ledger.Period) (string, string) {
	return formatTime(p.Start), formatTime(p.End.AddDate(0, 0, 1))
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = queries{}
)
