package statement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/ledger/store"
	"github.com/hosthub/owner-ledger/notify"
	"github.com/hosthub/owner-ledger/render"
	"github.com/hosthub/owner-ledger/settings"
	"github.com/hosthub/owner-ledger/statement"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const ownerID = ledger.OwnerID("owner-1")

var (
	janStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(n int) time.Time { return time.Date(2025, 1, n, 14, 0, 0, 0, time.UTC) }

type fixture struct {
	store   *store.TxMemory
	ledger  *ledger.Ledger
	queue   *notify.ChannelQueue
	service *statement.Service
}

func newFixture(t *testing.T, s ledger.TxStore, mem *store.TxMemory) *fixture {
	t.Helper()
	conv := fx.New(nil, "GHS", zerolog.Nop())
	l := ledger.NewLedger(s, conv, zerolog.Nop())
	q := notify.NewChannelQueue(10)
	gen := statement.NewGenerator(s, conv, zerolog.Nop())
	fin := statement.NewFinalizer(l, q, zerolog.Nop())
	cfg := settings.New(settings.NewMemory(), zerolog.Nop())
	return &fixture{
		store:   mem,
		ledger:  l,
		queue:   q,
		service: statement.NewService(gen, fin, render.TextRenderer{}, cfg, zerolog.Nop()),
	}
}

// seed loads the worked example: one COMPANY-routed and one OWNER-routed
// booking at 15%, one company-paid and one owner-paid expense, plus
// records that must be ignored.
func seed(t *testing.T) *store.TxMemory {
	t.Helper()
	ctx := context.Background()
	s := store.NewTxMemory()

	require.NoError(t, s.SaveOwner(ctx, ledger.Owner{ID: ownerID, Name: "Ama Mensah", PreferredCurrency: "GHS"}))
	require.NoError(t, s.SaveOwner(ctx, ledger.Owner{ID: "owner-idle", Name: "Idle Owner", PreferredCurrency: "GHS"}))
	require.NoError(t, s.SaveProperty(ctx, ledger.Property{ID: "prop-1", OwnerID: ownerID, Name: "Osu Villa", Currency: "GHS"}))

	bookings := []ledger.Booking{
		{ID: "bk-company", PaymentReceivedBy: ledger.PaidToCompany, BaseAmount: d("900"), CleaningFee: d("100"), PlatformFees: d("60"), Status: ledger.BookingCompleted, CheckInDate: day(10)},
		{ID: "bk-owner", PaymentReceivedBy: ledger.PaidToOwner, BaseAmount: d("500"), Status: ledger.BookingCompleted, CheckInDate: day(20)},
		{ID: "bk-confirmed", PaymentReceivedBy: ledger.PaidToCompany, BaseAmount: d("700"), Status: ledger.BookingConfirmed, CheckInDate: day(25)},
		{ID: "bk-february", PaymentReceivedBy: ledger.PaidToCompany, BaseAmount: d("800"), Status: ledger.BookingCompleted, CheckInDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, b := range bookings {
		b.PropertyID, b.OwnerID, b.Currency = "prop-1", ownerID, "GHS"
		require.NoError(t, s.SaveBooking(ctx, b))
	}

	expenses := []ledger.Expense{
		{ID: "ex-company", Amount: d("100"), PaidBy: ledger.PaidByCompany, Category: "Repairs", Description: "Plumber", Date: day(15)},
		{ID: "ex-owner", Amount: d("40"), PaidBy: ledger.PaidByOwner, Category: "Supplies", Description: "Towels", Date: day(16)},
		{ID: "ex-december", Amount: d("999"), PaidBy: ledger.PaidByCompany, Date: time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)},
	}
	for _, e := range expenses {
		e.PropertyID, e.OwnerID, e.Currency = "prop-1", ownerID, "GHS"
		require.NoError(t, s.SaveExpense(ctx, e))
	}
	return s
}

func janRequest() statement.Request {
	return statement.Request{OwnerID: ownerID, PeriodStart: janStart, PeriodEnd: janEnd}
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, d(expected).StringFixed(2), actual.StringFixed(2), msgAndArgs...)
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerate_WorkedExample(t *testing.T) {
	// GIVEN: COMPANY booking 1000, OWNER booking 500, 15% commission,
	//        company expense 100, owner expense 40
	// WHEN: Generating January
	// THEN: net = (1000 - 150 - 100) - 75 + 40 = 715

	s := seed(t)
	f := newFixture(t, s, s)

	st, err := f.service.Preview(context.Background(), janRequest())
	require.NoError(t, err)

	assert.Equal(t, ledger.StatementDraft, st.Status)
	assert.Equal(t, ledger.Currency("GHS"), st.DisplayCurrency)
	assertMoney(t, "1500", st.GrossRevenue)
	assertMoney(t, "1000", st.CompanyRevenue)
	assertMoney(t, "500", st.OwnerRevenue)
	assertMoney(t, "225", st.CommissionAmount)
	assertMoney(t, "150", st.CompanyCommission)
	assertMoney(t, "75", st.OwnerCommission)
	assertMoney(t, "140", st.TotalExpenses)
	assertMoney(t, "100", st.CompanyPaidExpenses)
	assertMoney(t, "40", st.OwnerPaidExpenses)
	assertMoney(t, "715", st.NetToOwner)
	assertMoney(t, "0", st.OpeningBalance)
	assertMoney(t, "715", st.ClosingBalance)

	require.Len(t, st.Lines, 5)
	var bookingLines, expenseLines, commissionLines int
	for i, l := range st.Lines {
		assert.Equal(t, i, l.Position)
		assert.Equal(t, st.ID, l.StatementID)
		switch l.Type {
		case ledger.LineBooking:
			bookingLines++
			assert.True(t, l.Amount.IsPositive())
			require.NotNil(t, l.BookingID)
		case ledger.LineExpense:
			expenseLines++
			assert.True(t, l.Amount.IsNegative())
			require.NotNil(t, l.ExpenseID)
		case ledger.LineCommission:
			commissionLines++
			assertMoney(t, "-225", l.Amount)
		}
	}
	assert.Equal(t, 2, bookingLines)
	assert.Equal(t, 2, expenseLines)
	assert.Equal(t, 1, commissionLines)
}

func TestGenerate_OpeningBalanceFromWallet(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	_, err := f.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		OwnerID: ownerID, Type: ledger.TxManualAdjustment, Amount: d("-50"), Currency: "GHS",
	})
	require.NoError(t, err)

	st, err := f.service.Preview(ctx, janRequest())
	require.NoError(t, err)
	assertMoney(t, "-50", st.OpeningBalance)
	assertMoney(t, "665", st.ClosingBalance)
}

func TestGenerate_OpeningBalanceIgnoresDriftedWallet(t *testing.T) {
	// GIVEN: A -50 adjustment in the ledger, cached wallet drifted to 999
	// WHEN: Previewing January
	// THEN: Opening balance is the ledger-derived -50

	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	_, err := f.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		OwnerID: ownerID, Type: ledger.TxManualAdjustment, Amount: d("-50"), Currency: "GHS",
	})
	require.NoError(t, err)

	w, err := s.GetWallet(ctx, ownerID)
	require.NoError(t, err)
	w.CurrentBalance = d("999")
	w.Version++
	require.NoError(t, s.SaveWallet(ctx, *w))

	st, err := f.service.Preview(ctx, janRequest())
	require.NoError(t, err)
	assertMoney(t, "-50", st.OpeningBalance)
	assertMoney(t, "665", st.ClosingBalance)
}

func TestGenerate_DisplayCurrencyConverts(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)

	req := janRequest()
	req.DisplayCurrency = "USD"
	st, err := f.service.Preview(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ledger.Currency("USD"), st.DisplayCurrency)
	assertMoney(t, "96.78", st.GrossRevenue, "1000 GHS -> 64.52 USD, 500 GHS -> 32.26 USD")
}

func TestGenerate_InvalidPeriod(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)

	req := janRequest()
	req.PeriodStart, req.PeriodEnd = janEnd, janStart
	_, err := f.service.Preview(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)
}

func TestGenerate_UnknownOwner(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)

	req := janRequest()
	req.OwnerID = "ghost"
	_, err := f.service.Preview(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrOwnerNotFound)
}

func TestGenerateAll_SkipsOwnersWithoutActivity(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)

	sts, err := f.service.GenerateAll(context.Background(), janStart, janEnd, "", true)
	require.NoError(t, err)
	require.Len(t, sts, 1)
	assert.Equal(t, ownerID, sts[0].OwnerID)

	stored, err := f.service.List(context.Background(), ledger.StatementFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

// =============================================================================
// DRAFTS
// =============================================================================

func TestRegenerate_PicksUpNewData(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	draft, err := f.service.CreateDraft(ctx, janRequest())
	require.NoError(t, err)

	require.NoError(t, s.SaveExpense(ctx, ledger.Expense{
		ID: "ex-late", PropertyID: "prop-1", OwnerID: ownerID, Currency: "GHS",
		Amount: d("15"), PaidBy: ledger.PaidByVendor, Date: day(28),
	}))

	st, err := f.service.Regenerate(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, st.ID)
	assert.True(t, draft.CreatedAt.Equal(st.CreatedAt))
	assertMoney(t, "700", st.NetToOwner, "vendor-paid expense counts as company-paid")
	assertMoney(t, "115", st.CompanyPaidExpenses)

	stored, err := f.service.Get(ctx, draft.ID)
	require.NoError(t, err)
	assertMoney(t, "700", stored.NetToOwner)
	assert.Len(t, stored.Lines, 6)
}

func TestRegenerate_NotFound(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	_, err := f.service.Regenerate(context.Background(), "nope")
	assert.ErrorIs(t, err, ledger.ErrStatementNotFound)
}

// =============================================================================
// FINALIZATION
// =============================================================================

func TestFinalize_PostsNetAndResyncsWallet(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	draft, err := f.service.CreateDraft(ctx, janRequest())
	require.NoError(t, err)

	doc, err := f.service.FinalizeDocument(ctx, draft.ID, "admin-1")
	require.NoError(t, err)

	st := doc.Statement
	assert.Equal(t, ledger.StatementFinalized, st.Status)
	require.NotNil(t, st.FinalizedAt)
	require.NotNil(t, st.FinalizedBy)
	assert.Equal(t, ledger.UserID("admin-1"), *st.FinalizedBy)
	assert.Equal(t, "/api/statements/"+string(draft.ID)+"/document", st.PDFURL)
	assert.Contains(t, string(doc.Content), "715.00 GHS")

	txs, err := s.ListTransactions(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxStatementNet, txs[0].Type)
	assert.Equal(t, string(draft.ID), txs[0].ReferenceID)
	assertMoney(t, "715", txs[0].Amount)

	w, err := s.GetWallet(ctx, ownerID)
	require.NoError(t, err)
	assertMoney(t, "715", w.CurrentBalance)
	assert.True(t, ledger.Project(txs).Matches(*w))

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	msg, err := f.queue.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, notify.EventStatementFinalized, msg.Event)
	assert.Equal(t, string(draft.ID), msg.Payload["statement_id"])
}

func TestFinalize_OneWay(t *testing.T) {
	// GIVEN: A finalized statement
	// WHEN: Finalizing again, regenerating, or overwriting it
	// THEN: All rejected, ledger untouched

	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	draft, err := f.service.CreateDraft(ctx, janRequest())
	require.NoError(t, err)
	_, err = f.service.Finalizer.Finalize(ctx, draft.ID, "admin-1")
	require.NoError(t, err)

	_, err = f.service.Finalizer.Finalize(ctx, draft.ID, "admin-1")
	assert.ErrorIs(t, err, ledger.ErrStatementFinalized)
	assert.True(t, ledger.IsConflict(err))

	_, err = f.service.Regenerate(ctx, draft.ID)
	assert.ErrorIs(t, err, ledger.ErrStatementFinalized)

	assert.ErrorIs(t, s.SaveStatement(ctx, *draft), ledger.ErrStatementFinalized)

	txs, err := s.ListTransactions(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestFinalize_NotFound(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	_, err := f.service.Finalizer.Finalize(context.Background(), "missing", "admin-1")
	assert.ErrorIs(t, err, ledger.ErrStatementNotFound)
}

func TestFinalize_ForeignDisplayCurrencyConvertedToWallet(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()

	req := janRequest()
	req.DisplayCurrency = "USD"
	draft, err := f.service.CreateDraft(ctx, req)
	require.NoError(t, err)

	_, err = f.service.Finalizer.Finalize(ctx, draft.ID, "admin-1")
	require.NoError(t, err)

	txs, err := s.ListTransactions(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.Currency("GHS"), txs[0].Currency)
	assert.Contains(t, txs[0].Notes, "converted from")
}

// failingSave makes every SaveStatement inside a unit fail.
type failingSave struct{ ledger.Store }

func (failingSave) SaveStatement(context.Context, ledger.Statement) error {
	return errors.New("disk full")
}

type failingTxStore struct{ *store.TxMemory }

func (f failingTxStore) WithTx(ctx context.Context, owner ledger.OwnerID, fn func(ledger.Store) error) error {
	return f.TxMemory.WithTx(ctx, owner, func(s ledger.Store) error { return fn(failingSave{s}) })
}

func TestFinalize_FailureRollsBackEverything(t *testing.T) {
	// GIVEN: The statement save fails after the net transaction was appended
	// WHEN: Finalizing
	// THEN: No transaction, wallet unchanged, statement still DRAFT, no notice

	s := seed(t)
	f := newFixture(t, failingTxStore{s}, s)
	ctx := context.Background()

	draft, err := f.service.CreateDraft(ctx, janRequest())
	require.NoError(t, err)

	_, err = f.service.FinalizeDocument(ctx, draft.ID, "admin-1")
	require.Error(t, err)

	txs, err := s.ListTransactions(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	w, err := s.GetWallet(ctx, ownerID)
	require.NoError(t, err)
	assert.Nil(t, w, "wallet created inside the failed unit is rolled back too")

	stored, err := s.GetStatement(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatementDraft, stored.Status)

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// cancelAfterCommit cancels the caller's context once a unit commits.
type cancelAfterCommit struct {
	*store.TxMemory
	cancel context.CancelFunc
}

func (c cancelAfterCommit) WithTx(ctx context.Context, owner ledger.OwnerID, fn func(ledger.Store) error) error {
	err := c.TxMemory.WithTx(ctx, owner, fn)
	if err == nil {
		c.cancel()
	}
	return err
}

// ctxQueue refuses work on a done context, as a network-backed queue would.
type ctxQueue struct{ *notify.ChannelQueue }

func (q ctxQueue) Enqueue(ctx context.Context, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.ChannelQueue.Enqueue(ctx, m)
}

func TestFinalize_RequestCancelledAfterCommit_StillQueuesNotice(t *testing.T) {
	// GIVEN: The caller's context is cancelled right after the unit commits
	// WHEN: Finalizing
	// THEN: The statement is finalized and the notice is still queued

	s := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, s, s)
	draft, err := f.service.CreateDraft(context.Background(), janRequest())
	require.NoError(t, err)

	fin := f.service.Finalizer
	fin.Ledger = ledger.NewLedger(cancelAfterCommit{TxMemory: s, cancel: cancel}, f.ledger.Converter, zerolog.Nop())
	fin.Queue = ctxQueue{f.queue}

	st, err := fin.Finalize(ctx, draft.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatementFinalized, st.Status)
	require.Error(t, ctx.Err())

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFinalizeDocument_RenderFailureKeepsFinalization(t *testing.T) {
	s := seed(t)
	f := newFixture(t, s, s)
	ctx := context.Background()
	f.service.Renderer = render.RendererFunc(func(context.Context, ledger.Statement, ledger.Owner, settings.Branding) ([]byte, error) {
		return nil, errors.New("renderer offline")
	})

	draft, err := f.service.CreateDraft(ctx, janRequest())
	require.NoError(t, err)

	doc, err := f.service.FinalizeDocument(ctx, draft.ID, "admin-1")
	require.NoError(t, err)
	assert.Nil(t, doc.Content)
	assert.Equal(t, ledger.StatementFinalized, doc.Statement.Status)

	stored, err := f.service.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinalized())
}
