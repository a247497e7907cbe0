/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every amount crosses the wire as a decimal string ("1250.00"), never a
  JSON number, so no client float ever touches a balance.

VALIDATION:
  Request types carry validator/v10 struct tags; see validation.go.

SEE ALSO:
  - handlers.go: Uses these types
  - validation.go: Tag validation
*/
package api

import (
	"time"

	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/reconcile"
)

const dateLayout = "2006-01-02"

// =============================================================================
// WALLET / TRANSACTIONS
// =============================================================================

type WalletDTO struct {
	ID                 string `json:"id"`
	OwnerID            string `json:"owner_id"`
	Currency           string `json:"currency"`
	CurrentBalance     string `json:"current_balance"`
	CommissionsPayable string `json:"commissions_payable"`
	Version            int64  `json:"version"`
	UpdatedAt          string `json:"updated_at"`
}

type WalletResponse struct {
	Wallet                       WalletDTO        `json:"wallet"`
	Transactions                 []TransactionDTO `json:"transactions"`
	CalculatedBalance            string           `json:"calculated_balance"`
	CalculatedCommissionsPayable string           `json:"calculated_commissions_payable"`
	Healed                       bool             `json:"healed"`
}

type TransactionDTO struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	CommissionDelta string `json:"commission_delta"`
	Currency        string `json:"currency"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Date            string `json:"date"`
	CreatedBy       string `json:"created_by,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// PaymentRequest is the body of both payment endpoints.
type PaymentRequest struct {
	Amount    string `json:"amount" validate:"required,decimal"`
	Currency  string `json:"currency" validate:"required,currency"`
	Reference string `json:"reference" validate:"max=100"`
	Notes     string `json:"notes" validate:"max=500"`
	Actor     string `json:"actor" validate:"max=100"`
}

type PaymentResponse struct {
	Wallet      WalletDTO      `json:"wallet"`
	Transaction TransactionDTO `json:"transaction"`
}

type CreateTransactionRequest struct {
	Type        string `json:"type" validate:"required,oneof=COMMISSION_PAYMENT MANUAL_ADJUSTMENT STATEMENT_NET COMMISSION_ADJUSTMENT PAYOUT"`
	Amount      string `json:"amount" validate:"required,decimal"`
	Currency    string `json:"currency" validate:"required,currency"`
	ReferenceID string `json:"reference_id" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=500"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Actor       string `json:"actor" validate:"max=100"`
}

// =============================================================================
// STATEMENTS
// =============================================================================

type GenerateStatementRequest struct {
	OwnerID         string `json:"owner_id" validate:"required"`
	PeriodStart     string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd       string `json:"period_end" validate:"required,datetime=2006-01-02"`
	DisplayCurrency string `json:"display_currency" validate:"omitempty,currency"`
	Save            bool   `json:"save"`
}

type GenerateAllRequest struct {
	PeriodStart     string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd       string `json:"period_end" validate:"required,datetime=2006-01-02"`
	DisplayCurrency string `json:"display_currency" validate:"omitempty,currency"`
	Save            bool   `json:"save"`
}

type FinalizeRequest struct {
	Actor string `json:"actor" validate:"required,max=100"`
}

type StatementLineDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	BookingID   string `json:"booking_id,omitempty"`
	ExpenseID   string `json:"expense_id,omitempty"`
	Date        string `json:"date"`
	Position    int    `json:"position"`
}

type StatementDTO struct {
	ID                  string             `json:"id"`
	OwnerID             string             `json:"owner_id"`
	PeriodStart         string             `json:"period_start"`
	PeriodEnd           string             `json:"period_end"`
	Status              string             `json:"status"`
	DisplayCurrency     string             `json:"display_currency"`
	GrossRevenue        string             `json:"gross_revenue"`
	TotalExpenses       string             `json:"total_expenses"`
	CommissionAmount    string             `json:"commission_amount"`
	NetToOwner          string             `json:"net_to_owner"`
	CompanyRevenue      string             `json:"company_revenue"`
	OwnerRevenue        string             `json:"owner_revenue"`
	CompanyCommission   string             `json:"company_commission"`
	OwnerCommission     string             `json:"owner_commission"`
	CompanyPaidExpenses string             `json:"company_paid_expenses"`
	OwnerPaidExpenses   string             `json:"owner_paid_expenses"`
	OpeningBalance      string             `json:"opening_balance"`
	ClosingBalance      string             `json:"closing_balance"`
	PDFURL              string             `json:"pdf_url,omitempty"`
	FinalizedAt         *string            `json:"finalized_at,omitempty"`
	FinalizedBy         *string            `json:"finalized_by,omitempty"`
	Lines               []StatementLineDTO `json:"lines"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingRequest struct {
	ID                string `json:"id" validate:"max=100"`
	PropertyID        string `json:"property_id" validate:"required"`
	OwnerID           string `json:"owner_id" validate:"required"`
	GuestName         string `json:"guest_name" validate:"max=200"`
	Currency          string `json:"currency" validate:"required,currency"`
	BaseAmount        string `json:"base_amount" validate:"required,decimal"`
	CleaningFee       string `json:"cleaning_fee" validate:"omitempty,decimal"`
	PlatformFees      string `json:"platform_fees" validate:"omitempty,decimal"`
	Taxes             string `json:"taxes" validate:"omitempty,decimal"`
	PaymentReceivedBy string `json:"payment_received_by" validate:"required,oneof=OWNER COMPANY"`
	Status            string `json:"status" validate:"required,oneof=PENDING CONFIRMED CHECKED_IN COMPLETED CANCELLED"`
	CheckInDate       string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate      string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
}

type BookingDTO struct {
	ID                string `json:"id"`
	PropertyID        string `json:"property_id"`
	OwnerID           string `json:"owner_id"`
	GuestName         string `json:"guest_name,omitempty"`
	Currency          string `json:"currency"`
	BaseAmount        string `json:"base_amount"`
	CleaningFee       string `json:"cleaning_fee"`
	PlatformFees      string `json:"platform_fees"`
	Taxes             string `json:"taxes"`
	PaymentReceivedBy string `json:"payment_received_by"`
	Status            string `json:"status"`
	CheckInDate       string `json:"check_in_date"`
	CheckOutDate      string `json:"check_out_date"`
}

type ReconcileResponse struct {
	Booking       BookingDTO      `json:"booking"`
	Transition    string          `json:"transition"`
	OldCommission string          `json:"old_commission"`
	NewCommission string          `json:"new_commission"`
	Adjustment    string          `json:"adjustment"`
	Unclamped     string          `json:"unclamped_adjustment"`
	Transaction   *TransactionDTO `json:"transaction,omitempty"`
	Wallet        *WalletDTO      `json:"wallet,omitempty"`
}

// =============================================================================
// FX / SETTINGS / ADMIN
// =============================================================================

type RateDTO struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
	Source   string `json:"source"`
}

type RatesResponse struct {
	Base  string    `json:"base"`
	Rates []RateDTO `json:"rates"`
}

type ConvertResponse struct {
	Amount    string `json:"amount"`
	From      string `json:"from"`
	To        string `json:"to"`
	Converted string `json:"converted"`
}

type SettingRequest struct {
	Value string `json:"value" validate:"required,max=1000"`
}

type DriftReportDTO struct {
	Checked    int      `json:"checked"`
	Drifted    []string `json:"drifted"`
	Healed     int      `json:"healed"`
	Failed     int      `json:"failed"`
	DurationMS int64    `json:"duration_ms"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toWalletDTO(w ledger.Wallet) WalletDTO {
	return WalletDTO{
		ID:                 w.ID,
		OwnerID:            string(w.OwnerID),
		Currency:           string(w.Currency),
		CurrentBalance:     w.CurrentBalance.StringFixed(2),
		CommissionsPayable: w.CommissionsPayable.StringFixed(2),
		Version:            w.Version,
		UpdatedAt:          w.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              string(tx.ID),
		OwnerID:         string(tx.OwnerID),
		Type:            string(tx.Type),
		Amount:          tx.Amount.StringFixed(2),
		CommissionDelta: tx.CommissionDelta.StringFixed(2),
		Currency:        string(tx.Currency),
		ReferenceID:     tx.ReferenceID,
		Notes:           tx.Notes,
		Date:            tx.Date.Format(time.RFC3339),
		CreatedBy:       string(tx.CreatedBy),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toStatementDTO(st ledger.Statement) StatementDTO {
	dto := StatementDTO{
		ID:                  string(st.ID),
		OwnerID:             string(st.OwnerID),
		PeriodStart:         st.PeriodStart.Format(dateLayout),
		PeriodEnd:           st.PeriodEnd.Format(dateLayout),
		Status:              string(st.Status),
		DisplayCurrency:     string(st.DisplayCurrency),
		GrossRevenue:        st.GrossRevenue.StringFixed(2),
		TotalExpenses:       st.TotalExpenses.StringFixed(2),
		CommissionAmount:    st.CommissionAmount.StringFixed(2),
		NetToOwner:          st.NetToOwner.StringFixed(2),
		CompanyRevenue:      st.CompanyRevenue.StringFixed(2),
		OwnerRevenue:        st.OwnerRevenue.StringFixed(2),
		CompanyCommission:   st.CompanyCommission.StringFixed(2),
		OwnerCommission:     st.OwnerCommission.StringFixed(2),
		CompanyPaidExpenses: st.CompanyPaidExpenses.StringFixed(2),
		OwnerPaidExpenses:   st.OwnerPaidExpenses.StringFixed(2),
		OpeningBalance:      st.OpeningBalance.StringFixed(2),
		ClosingBalance:      st.ClosingBalance.StringFixed(2),
		PDFURL:              st.PDFURL,
		Lines:               make([]StatementLineDTO, len(st.Lines)),
	}
	if st.FinalizedAt != nil {
		at := st.FinalizedAt.Format(time.RFC3339)
		dto.FinalizedAt = &at
	}
	if st.FinalizedBy != nil {
		by := string(*st.FinalizedBy)
		dto.FinalizedBy = &by
	}
	for i, l := range st.Lines {
		line := StatementLineDTO{
			ID:          l.ID,
			Type:        string(l.Type),
			Description: l.Description,
			Amount:      l.Amount.StringFixed(2),
			Date:        l.Date.Format(dateLayout),
			Position:    l.Position,
		}
		if l.BookingID != nil {
			line.BookingID = string(*l.BookingID)
		}
		if l.ExpenseID != nil {
			line.ExpenseID = string(*l.ExpenseID)
		}
		dto.Lines[i] = line
	}
	return dto
}

func toStatementDTOs(sts []ledger.Statement) []StatementDTO {
	dtos := make([]StatementDTO, len(sts))
	for i, st := range sts {
		dtos[i] = toStatementDTO(st)
	}
	return dtos
}

func toBookingDTO(b ledger.Booking) BookingDTO {
	return BookingDTO{
		ID:                string(b.ID),
		PropertyID:        string(b.PropertyID),
		OwnerID:           string(b.OwnerID),
		GuestName:         b.GuestName,
		Currency:          string(b.Currency),
		BaseAmount:        b.BaseAmount.StringFixed(2),
		CleaningFee:       b.CleaningFee.StringFixed(2),
		PlatformFees:      b.PlatformFees.StringFixed(2),
		Taxes:             b.Taxes.StringFixed(2),
		PaymentReceivedBy: string(b.PaymentReceivedBy),
		Status:            string(b.Status),
		CheckInDate:       b.CheckInDate.Format(dateLayout),
		CheckOutDate:      b.CheckOutDate.Format(dateLayout),
	}
}

func toReconcileResponse(res *reconcile.Result) ReconcileResponse {
	resp := ReconcileResponse{
		Booking:       toBookingDTO(res.Booking),
		Transition:    string(res.Transition),
		OldCommission: res.OldCommission.StringFixed(2),
		NewCommission: res.NewCommission.StringFixed(2),
		Adjustment:    res.Adjustment.StringFixed(2),
		Unclamped:     res.Unclamped.StringFixed(2),
	}
	if res.Transaction != nil {
		tx := toTransactionDTO(*res.Transaction)
		resp.Transaction = &tx
	}
	if res.Wallet != nil {
		w := toWalletDTO(*res.Wallet)
		resp.Wallet = &w
	}
	return resp
}

func toRateDTOs(entries []fx.RateEntry) []RateDTO {
	dtos := make([]RateDTO, len(entries))
	for i, e := range entries {
		dtos[i] = RateDTO{Currency: string(e.Currency), Rate: e.Rate.String(), Source: e.Source}
	}
	return dtos
}
