/*
Package statement builds and finalizes owner settlement statements.

GENERATION (read-only, returns a DRAFT):
  1. COMPLETED bookings with check-in inside [start, end]
  2. Expenses dated inside [start, end]
  3. Every figure converted to the display currency
  4. Revenue and commission split by who received the guest's money,
     expenses split by who paid (vendor-paid counts as company-paid)

NET TO OWNER:
  (companyRevenue - companyCommission - companyPaidExpenses)
      - ownerCommission + ownerPaidExpenses

  The company holds what guests paid it, keeps its commission and the
  bills it settled, and owes the owner the rest. The owner kept what
  guests paid them, so owes the commission on it, and is reimbursed for
  bills they paid themselves.

OPENING / CLOSING:
  Opening is the live wallet balance at generation time. Closing is a
  projection (opening + net) until the statement is finalized.

SEE ALSO:
  - finalizer.go: DRAFT -> FINALIZED
  - service.go:   persistence, regeneration, document rendering
*/
package statement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/commission"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/metrics"
)

type Request struct {
	OwnerID         ledger.OwnerID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	DisplayCurrency ledger.Currency // empty = owner's preferred currency
}

type Generator struct {
	Store      ledger.Store
	Calculator *commission.Calculator
	Converter  ledger.Converter
	Clock      ledger.Clock
	Log        zerolog.Logger
}

func NewGenerator(store ledger.Store, converter ledger.Converter, log zerolog.Logger) *Generator {
	return &Generator{
		Store:      store,
		Calculator: commission.NewCalculator(converter),
		Converter:  converter,
		Clock:      time.Now,
		Log:        log.With().Str("component", "statement_generator").Logger(),
	}
}

func (g *Generator) now() time.Time {
	if g.Clock == nil {
		return time.Now().UTC()
	}
	return g.Clock().UTC()
}

// Generate computes an unsaved DRAFT statement.
func (g *Generator) Generate(ctx context.Context, req Request) (*ledger.Statement, error) {
	return g.generate(ctx, g.Store, req)
}

func (g *Generator) generate(ctx context.Context, s ledger.Store, req Request) (*ledger.Statement, error) {
	period, err := ledger.NewPeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	owner, err := s.GetOwner(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if owner == nil {
		return nil, ledger.ErrOwnerNotFound
	}

	display := req.DisplayCurrency
	if display == "" {
		display = owner.PreferredCurrency
	}
	if !display.Valid() {
		return nil, &ledger.ValidationError{Field: "display_currency", Message: "invalid currency code " + string(display), Err: ledger.ErrInvalidCurrency}
	}

	completed := ledger.BookingCompleted
	bookings, err := s.ListBookings(ctx, ledger.BookingFilter{OwnerID: &owner.ID, Status: &completed, CheckIn: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	expenses, err := s.ListExpenses(ctx, ledger.ExpenseFilter{OwnerID: &owner.ID, Date: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}

	now := g.now()
	st := &ledger.Statement{
		ID:                  ledger.StatementID(uuid.NewString()),
		OwnerID:             owner.ID,
		PeriodStart:         period.Start,
		PeriodEnd:           period.End,
		Status:              ledger.StatementDraft,
		DisplayCurrency:     display,
		GrossRevenue:        decimal.Zero,
		TotalExpenses:       decimal.Zero,
		CommissionAmount:    decimal.Zero,
		CompanyRevenue:      decimal.Zero,
		OwnerRevenue:        decimal.Zero,
		CompanyCommission:   decimal.Zero,
		OwnerCommission:     decimal.Zero,
		CompanyPaidExpenses: decimal.Zero,
		OwnerPaidExpenses:   decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	properties := map[ledger.PropertyID]*ledger.Property{}
	for _, b := range bookings {
		p, ok := properties[b.PropertyID]
		if !ok {
			if p, err = s.GetProperty(ctx, b.PropertyID); err != nil {
				return nil, fmt.Errorf("failed to load property %s: %w", b.PropertyID, err)
			}
			properties[b.PropertyID] = p
		}

		bd, err := g.Calculator.ForBooking(ctx, b, p, display)
		if err != nil {
			return nil, err
		}

		st.GrossRevenue = st.GrossRevenue.Add(bd.Gross)
		if bd.Flow == commission.OwnerOwes {
			st.OwnerRevenue = st.OwnerRevenue.Add(bd.Gross)
			st.OwnerCommission = st.OwnerCommission.Add(bd.Commission)
		} else {
			st.CompanyRevenue = st.CompanyRevenue.Add(bd.Gross)
			st.CompanyCommission = st.CompanyCommission.Add(bd.Commission)
		}

		bookingID := b.ID
		st.Lines = append(st.Lines, ledger.StatementLine{
			Type:        ledger.LineBooking,
			Description: bookingDescription(b),
			Amount:      bd.Gross,
			BookingID:   &bookingID,
			Date:        b.CheckInDate,
		})
	}

	for _, e := range expenses {
		amount, err := g.convert(ctx, e.Amount, e.Currency, display)
		if err != nil {
			return nil, fmt.Errorf("convert expense %s: %w", e.ID, err)
		}

		st.TotalExpenses = st.TotalExpenses.Add(amount)
		if e.PaidBy == ledger.PaidByOwner {
			st.OwnerPaidExpenses = st.OwnerPaidExpenses.Add(amount)
		} else {
			st.CompanyPaidExpenses = st.CompanyPaidExpenses.Add(amount)
		}

		expenseID := e.ID
		st.Lines = append(st.Lines, ledger.StatementLine{
			Type:        ledger.LineExpense,
			Description: expenseDescription(e),
			Amount:      amount.Neg(),
			ExpenseID:   &expenseID,
			Date:        e.Date,
		})
	}

	st.CommissionAmount = st.CompanyCommission.Add(st.OwnerCommission)
	if !st.CommissionAmount.IsZero() {
		st.Lines = append(st.Lines, ledger.StatementLine{
			Type:        ledger.LineCommission,
			Description: "Management commission",
			Amount:      st.CommissionAmount.Neg(),
			Date:        period.End,
		})
	}

	st.NetToOwner = ledger.Round(NetToOwner(*st))

	opening, err := g.openingBalance(ctx, s, owner.ID, display)
	if err != nil {
		return nil, err
	}
	st.OpeningBalance = opening
	st.ClosingBalance = opening.Add(st.NetToOwner)

	for i := range st.Lines {
		st.Lines[i].ID = uuid.NewString()
		st.Lines[i].StatementID = st.ID
		st.Lines[i].Position = i
	}

	metrics.RecordStatementGenerated()
	g.Log.Debug().
		Str("owner_id", string(owner.ID)).
		Str("period", period.String()).
		Int("bookings", len(bookings)).
		Int("expenses", len(expenses)).
		Str("net_to_owner", st.NetToOwner.StringFixed(2)).
		Msg("Statement generated")
	return st, nil
}

// NetToOwner applies the settlement formula to a statement's breakdown.
func NetToOwner(st ledger.Statement) decimal.Decimal {
	companyLeg := st.CompanyRevenue.Sub(st.CompanyCommission).Sub(st.CompanyPaidExpenses)
	return companyLeg.Sub(st.OwnerCommission).Add(st.OwnerPaidExpenses)
}

// GenerateAll generates a draft for every owner with activity in the
// window. Owners with no bookings and no expenses are skipped. A failure
// for one owner does not stop the others.
func (g *Generator) GenerateAll(ctx context.Context, start, end time.Time, display ledger.Currency) ([]ledger.Statement, error) {
	if _, err := ledger.NewPeriod(start, end); err != nil {
		return nil, err
	}

	owners, err := g.Store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	var (
		out  []ledger.Statement
		errs []error
	)
	for _, o := range owners {
		st, err := g.Generate(ctx, Request{OwnerID: o.ID, PeriodStart: start, PeriodEnd: end, DisplayCurrency: display})
		if err != nil {
			g.Log.Error().Err(err).Str("owner_id", string(o.ID)).Msg("Statement generation failed")
			errs = append(errs, fmt.Errorf("owner %s: %w", o.ID, err))
			continue
		}
		if len(st.Lines) == 0 {
			continue
		}
		out = append(out, *st)
	}
	return out, errors.Join(errs...)
}

func (g *Generator) openingBalance(ctx context.Context, s ledger.Store, ownerID ledger.OwnerID, display ledger.Currency) (decimal.Decimal, error) {
	w, err := s.GetWallet(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load wallet: %w", err)
	}
	if w == nil {
		return decimal.Zero, nil
	}
	txs, err := s.ListTransactions(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transactions: %w", err)
	}
	// Derived from the ledger; the cached wallet may have drifted.
	return g.convert(ctx, ledger.Project(txs).Balance, w.Currency, display)
}

func (g *Generator) convert(ctx context.Context, amount decimal.Decimal, from, to ledger.Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	converted, err := g.Converter.Convert(ctx, amount, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.Round(converted), nil
}

func bookingDescription(b ledger.Booking) string {
	desc := fmt.Sprintf("Booking %s", b.ID)
	if b.GuestName != "" {
		desc += " - " + b.GuestName
	}
	if !b.CheckOutDate.IsZero() {
		desc += fmt.Sprintf(" (%s to %s)", b.CheckInDate.Format("Jan 2"), b.CheckOutDate.Format("Jan 2"))
	}
	if b.PaymentReceivedBy == ledger.PaidToOwner {
		desc += ", paid to owner"
	}
	return desc
}

func expenseDescription(e ledger.Expense) string {
	desc := e.Description
	if desc == "" {
		desc = "Expense " + string(e.ID)
	}
	if e.Category != "" {
		desc = e.Category + ": " + desc
	}
	if e.PaidBy == ledger.PaidByOwner {
		desc += ", paid by owner"
	}
	return desc
}
