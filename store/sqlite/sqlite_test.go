package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/settings"
	"github.com/hosthub/owner-ledger/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedOwner(t *testing.T, store *sqlite.Store, id ledger.OwnerID, currency ledger.Currency) {
	t.Helper()
	require.NoError(t, store.SaveOwner(context.Background(), ledger.Owner{
		ID: id, Name: "Ama Mensah", Email: "ama@example.com", PreferredCurrency: currency, CreatedAt: time.Now(),
	}))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactions_OrderedByDateThenCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	// GIVEN: Entries appended out of date order
	for i, d := range []string{"2025-01-03", "2025-01-01", "2025-01-02"} {
		require.NoError(t, store.AppendTransaction(ctx, ledger.Transaction{
			ID:        ledger.TransactionID("tx-" + d),
			OwnerID:   "owner-1",
			Type:      ledger.TxManualAdjustment,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Currency:  "GHS",
			Date:      day(d),
			CreatedAt: created,
		}))
	}

	// WHEN: Listing
	txs, err := store.ListTransactions(ctx, "owner-1")
	require.NoError(t, err)

	// THEN: Oldest first, amounts intact
	require.Len(t, txs, 3)
	assert.Equal(t, ledger.TransactionID("tx-2025-01-01"), txs[0].ID)
	assert.Equal(t, ledger.TransactionID("tx-2025-01-03"), txs[2].ID)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(2)))
	assert.True(t, txs[0].Date.Equal(day("2025-01-01")))
	assert.True(t, txs[0].CreatedAt.Equal(created))

	other, err := store.ListTransactions(ctx, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTransactions_DuplicateIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := ledger.Transaction{
		ID: "tx-1", OwnerID: "owner-1", Type: ledger.TxCommissionPayment,
		Amount: decimal.NewFromInt(-10), CommissionDelta: decimal.NewFromInt(-10),
		Currency: "GHS", Date: time.Now(), CreatedAt: time.Now(), IdempotencyKey: "pay-1",
	}
	require.NoError(t, store.AppendTransaction(ctx, tx))

	exists, err := store.TransactionExists(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, exists)

	tx.ID = "tx-2"
	err = store.AppendTransaction(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	// Entries without a key never collide
	for _, id := range []ledger.TransactionID{"tx-3", "tx-4"} {
		require.NoError(t, store.AppendTransaction(ctx, ledger.Transaction{
			ID: id, OwnerID: "owner-1", Type: ledger.TxManualAdjustment, Amount: decimal.NewFromInt(1),
			Currency: "GHS", Date: time.Now(), CreatedAt: time.Now(),
		}))
	}
}

func TestTransactions_IDCollisionIsNotIdempotencyConflict(t *testing.T) {
	// GIVEN: tx-1 stored under key pay-1
	// WHEN: Appending another tx-1 under a different key
	// THEN: The id collision surfaces as a storage error, not a duplicate key

	store := newTestStore(t)
	ctx := context.Background()

	tx := ledger.Transaction{
		ID: "tx-1", OwnerID: "owner-1", Type: ledger.TxManualAdjustment, Amount: decimal.NewFromInt(5),
		Currency: "GHS", Date: time.Now(), CreatedAt: time.Now(), IdempotencyKey: "pay-1",
	}
	require.NoError(t, store.AppendTransaction(ctx, tx))

	tx.IdempotencyKey = "pay-2"
	err := store.AppendTransaction(ctx, tx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
	assert.False(t, ledger.IsConflict(err))
	assert.ErrorContains(t, err, "failed to append transaction")

	exists, err := store.TransactionExists(ctx, "pay-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// WALLETS
// =============================================================================

func TestWallet_VersionCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := ledger.Wallet{
		ID: "w-1", OwnerID: "owner-1", Currency: "GHS",
		CurrentBalance: decimal.Zero, CommissionsPayable: decimal.RequireFromString("225.00"),
		Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveWallet(ctx, w))

	// Next version replaces
	w.Version = 2
	w.CommissionsPayable = decimal.RequireFromString("125.00")
	require.NoError(t, store.SaveWallet(ctx, w))

	// Stale version is rejected
	stale := w
	stale.Version = 2
	assert.ErrorIs(t, store.SaveWallet(ctx, stale), ledger.ErrConcurrentModification)

	got, err := store.GetWallet(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "125.00", got.CommissionsPayable.StringFixed(2))

	missing, err := store.GetWallet(ctx, "owner-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	wallets, err := store.ListWallets(ctx)
	require.NoError(t, err)
	assert.Len(t, wallets, 1)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestRecords_FiltersAreInclusiveByDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedOwner(t, store, "owner-1", "GHS")

	rate := decimal.RequireFromString("0.20")
	require.NoError(t, store.SaveProperty(ctx, ledger.Property{ID: "prop-1", OwnerID: "owner-1", Name: "Osu Loft", Currency: "GHS", DefaultCommissionRate: &rate}))
	require.NoError(t, store.SaveProperty(ctx, ledger.Property{ID: "prop-2", OwnerID: "owner-1", Name: "Labone Flat", Currency: "GHS"}))

	p1, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, p1.DefaultCommissionRate)
	assert.True(t, p1.DefaultCommissionRate.Equal(rate))
	p2, err := store.GetProperty(ctx, "prop-2")
	require.NoError(t, err)
	assert.Nil(t, p2.DefaultCommissionRate)

	booking := func(id ledger.BookingID, checkIn time.Time, status ledger.BookingStatus) ledger.Booking {
		return ledger.Booking{
			ID: id, PropertyID: "prop-1", OwnerID: "owner-1", Currency: "GHS",
			BaseAmount: decimal.NewFromInt(1000), CleaningFee: decimal.NewFromInt(100),
			PlatformFees: decimal.Zero, Taxes: decimal.Zero,
			PaymentReceivedBy: ledger.PaidToCompany, Status: status,
			CheckInDate: checkIn, CheckOutDate: checkIn.AddDate(0, 0, 2), UpdatedAt: time.Now(),
		}
	}
	require.NoError(t, store.SaveBooking(ctx, booking("b-before", day("2024-12-31"), ledger.BookingCompleted)))
	require.NoError(t, store.SaveBooking(ctx, booking("b-first", day("2025-01-01"), ledger.BookingCompleted)))
	// Late on the last day still counts
	require.NoError(t, store.SaveBooking(ctx, booking("b-last", day("2025-01-31").Add(22*time.Hour), ledger.BookingCancelled)))
	require.NoError(t, store.SaveBooking(ctx, booking("b-after", day("2025-02-01"), ledger.BookingCompleted)))

	period, err := ledger.NewPeriod(day("2025-01-01"), day("2025-01-31"))
	require.NoError(t, err)
	owner := ledger.OwnerID("owner-1")

	bookings, err := store.ListBookings(ctx, ledger.BookingFilter{OwnerID: &owner, CheckIn: &period})
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, ledger.BookingID("b-first"), bookings[0].ID)
	assert.Equal(t, ledger.BookingID("b-last"), bookings[1].ID)
	assert.True(t, bookings[0].GrossRevenue().Equal(decimal.NewFromInt(1100)))

	cancelled := ledger.BookingCancelled
	bookings, err = store.ListBookings(ctx, ledger.BookingFilter{Status: &cancelled})
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	require.NoError(t, store.SaveExpense(ctx, ledger.Expense{
		ID: "e-1", PropertyID: "prop-1", OwnerID: "owner-1", Currency: "GHS",
		Amount: decimal.RequireFromString("40.50"), PaidBy: ledger.PaidByVendor, Date: day("2025-01-31"),
	}))
	expenses, err := store.ListExpenses(ctx, ledger.ExpenseFilter{OwnerID: &owner, Date: &period})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, ledger.PaidByVendor, expenses[0].PaidBy)
	assert.Equal(t, "40.50", expenses[0].Amount.StringFixed(2))
}

// =============================================================================
// STATEMENTS
// =============================================================================

func TestStatements_FinalizedIsImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bookingID := ledger.BookingID("b-1")
	st := ledger.Statement{
		ID: "st-1", OwnerID: "owner-1", PeriodStart: day("2025-01-01"), PeriodEnd: day("2025-01-31"),
		Status: ledger.StatementDraft, DisplayCurrency: "GHS",
		GrossRevenue: decimal.NewFromInt(1500), NetToOwner: decimal.NewFromInt(715),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
		Lines: []ledger.StatementLine{
			{ID: "l-1", Type: ledger.LineBooking, Description: "Booking", Amount: decimal.NewFromInt(1000), BookingID: &bookingID, Date: day("2025-01-05"), Position: 0},
			{ID: "l-2", Type: ledger.LineCommission, Description: "Commission", Amount: decimal.NewFromInt(-150), Date: day("2025-01-05"), Position: 1},
		},
	}
	require.NoError(t, store.SaveStatement(ctx, st))

	// Draft can be regenerated with fresh lines
	st.Lines = st.Lines[:1]
	st.Lines[0].ID = "l-3"
	require.NoError(t, store.SaveStatement(ctx, st))

	got, err := store.GetStatement(ctx, "st-1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.NotNil(t, got.Lines[0].BookingID)
	assert.Equal(t, bookingID, *got.Lines[0].BookingID)
	assert.Nil(t, got.FinalizedAt)

	// Finalize
	now := time.Now()
	actor := ledger.UserID("admin-1")
	st.Status = ledger.StatementFinalized
	st.FinalizedAt = &now
	st.FinalizedBy = &actor
	require.NoError(t, store.SaveStatement(ctx, st))

	// Any further write is refused
	st.NetToOwner = decimal.NewFromInt(1)
	assert.ErrorIs(t, store.SaveStatement(ctx, st), ledger.ErrStatementFinalized)

	got, err = store.GetStatement(ctx, "st-1")
	require.NoError(t, err)
	assert.True(t, got.IsFinalized())
	assert.Equal(t, "715", got.NetToOwner.String())
	require.NotNil(t, got.FinalizedBy)
	assert.Equal(t, actor, *got.FinalizedBy)

	finalized := ledger.StatementFinalized
	list, err := store.ListStatements(ctx, ledger.StatementFilter{Status: &finalized})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.GetSetting(ctx, settings.KeyCompanyName)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.SetSetting(ctx, settings.KeyCompanyName, "Accra Stays"))
	require.NoError(t, store.SetSetting(ctx, settings.KeyCompanyName, "Accra Stays Ltd"))
	require.NoError(t, store.SetSetting(ctx, settings.FXRateKey("USD"), "16.00"))

	v, err = store.GetSetting(ctx, settings.KeyCompanyName)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Accra Stays Ltd", *v)

	all, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, "owner-1", func(s ledger.Store) error {
		require.NoError(t, s.AppendTransaction(ctx, ledger.Transaction{
			ID: "tx-1", OwnerID: "owner-1", Type: ledger.TxManualAdjustment,
			Amount: decimal.NewFromInt(5), Currency: "GHS", Date: time.Now(), CreatedAt: time.Now(),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := store.ListTransactions(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedgerOnSQLite_PaymentWithSettingsBackedFX(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := zerolog.Nop()
	seedOwner(t, store, "owner-1", "GHS")

	// GIVEN: A USD rate configured in settings and 500 GHS commission owed
	cfg := settings.New(store, log)
	require.NoError(t, cfg.Set(ctx, settings.FXRateKey("USD"), "16.00"))
	l := ledger.NewLedger(store, fx.New(cfg, fx.DefaultBase, log), log)

	err := store.WithTx(ctx, "owner-1", func(s ledger.Store) error {
		_, _, err := l.Record(ctx, s, ledger.Transaction{
			OwnerID: "owner-1", Type: ledger.TxCommissionAdjustment, CommissionDelta: decimal.NewFromInt(500), Currency: "GHS",
		}, ledger.SyncIncremental)
		return err
	})
	require.NoError(t, err)

	// WHEN: Paying 10 USD
	res, err := l.PayCommission(ctx, ledger.PaymentRequest{
		OwnerID: "owner-1", Amount: decimal.NewFromInt(10), Currency: "USD", IdempotencyKey: "pay-usd-1",
	})
	require.NoError(t, err)

	// THEN: 160 GHS came off, wallet still equals its ledger
	assert.Equal(t, "340.00", res.Wallet.CommissionsPayable.StringFixed(2))

	view, err := l.GetWallet(ctx, "owner-1")
	require.NoError(t, err)
	assert.False(t, view.Healed)
	assert.True(t, view.CalculatedCommissionsPayable.Equal(view.Wallet.CommissionsPayable))
}

// =============================================================================
// FAILURE PATHS (sqlmock)
// =============================================================================

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return sqlite.NewWithDB(sqlxDB), mock
}

func TestWithTx_CommitFailureSurfaces(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := store.WithTx(context.Background(), "owner-1", func(ledger.Store) error { return nil })
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := store.WithTx(context.Background(), "owner-1", func(ledger.Store) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
}

func TestSaveWallet_InsertConflictIsConcurrentModification(t *testing.T) {
	store, mock := newMockStore(t)

	// GIVEN: No row at the previous version, and the insert collides
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallets")).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	err := store.SaveWallet(context.Background(), ledger.Wallet{
		ID: "w-2", OwnerID: "owner-1", Currency: "GHS", Version: 4,
	})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransaction_DriverErrorIsWrapped(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(errors.New("disk full"))

	err := store.AppendTransaction(context.Background(), ledger.Transaction{ID: "tx-1", OwnerID: "owner-1"})
	assert.ErrorContains(t, err, "failed to append transaction")
	assert.NotErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
}
