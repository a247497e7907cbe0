package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - Date window for statements
// =============================================================================

// Period is an inclusive date window [Start, End]. Both ends are calendar
// days; End covers the whole day.
type Period struct {
	Start time.Time
	End   time.Time
}

func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: startOfDay(start), End: startOfDay(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if t falls on any day within the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End.AddDate(0, 0, 1))
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// STATEMENT - Periodic settlement document
// =============================================================================

type StatementStatus string

const (
	StatementDraft     StatementStatus = "DRAFT"
	StatementFinalized StatementStatus = "FINALIZED"
)

type Statement struct {
	ID              StatementID
	OwnerID         OwnerID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Status          StatementStatus
	DisplayCurrency Currency

	// Period totals, display currency
	GrossRevenue     decimal.Decimal
	TotalExpenses    decimal.Decimal
	CommissionAmount decimal.Decimal
	NetToOwner       decimal.Decimal

	// Breakdown by who received the money / paid the bill
	CompanyRevenue      decimal.Decimal
	OwnerRevenue        decimal.Decimal
	CompanyCommission   decimal.Decimal
	OwnerCommission     decimal.Decimal
	CompanyPaidExpenses decimal.Decimal
	OwnerPaidExpenses   decimal.Decimal

	// Projection only until finalized
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal

	PDFURL      string
	FinalizedAt *time.Time
	FinalizedBy *UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Lines []StatementLine
}

func (s Statement) Period() Period {
	return Period{Start: s.PeriodStart, End: s.PeriodEnd}
}

func (s Statement) IsFinalized() bool { return s.Status == StatementFinalized }

type LineType string

const (
	LineBooking    LineType = "BOOKING"
	LineExpense    LineType = "EXPENSE"
	LineCommission LineType = "COMMISSION"
)

type StatementLine struct {
	ID          string
	StatementID StatementID
	Type        LineType
	Description string
	Amount      decimal.Decimal // signed, display currency
	BookingID   *BookingID
	ExpenseID   *ExpenseID
	Date        time.Time
	Position    int
}
