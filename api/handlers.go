/*
handlers.go - HTTP API handlers for the owner ledger

PURPOSE:
  Exposes wallets, payments, statements, booking reconciliation and FX via
  REST. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Wallet:
    GET    /api/owners/{id}/wallet                      Self-healing wallet view
    POST   /api/owners/{id}/wallet/commission-payments  Pay commission owed
    POST   /api/owners/{id}/wallet/balance-payments     Pay a negative balance
    GET    /api/owners/{id}/transactions                Ledger history
    POST   /api/owners/{id}/transactions                Manual entry + resync

  Statements:
    GET    /api/statements?owner_id=&status=   List
    POST   /api/statements/generate            Preview, or save a draft
    POST   /api/statements/generate-all        Every active owner
    GET    /api/statements/{id}                One statement
    GET    /api/statements/{id}/document       Rendered document
    POST   /api/statements/{id}/regenerate     Recompute a draft
    POST   /api/statements/{id}/finalize       Finalize, returns document bytes

  Bookings:
    POST   /api/bookings        Create, accrues owner-received commission
    PUT    /api/bookings/{id}   Edit, posts the routing adjustment

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator/v10 tags, then domain parsing)
  3. Call domain logic
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Owner, property, booking or statement not found
  - 409: Finalized statement, existing booking, duplicate idempotency key,
         version conflict
  - 422: Payment over the ceiling; details carry the ceiling
  - 500: Internal errors

IDEMPOTENCY:
  Payment and transaction endpoints honour an Idempotency-Key header. A
  replay is a 409, never a second posting.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/notify"
	"github.com/hosthub/owner-ledger/reconcile"
	"github.com/hosthub/owner-ledger/settings"
	"github.com/hosthub/owner-ledger/statement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      ledger.TxStore
	Ledger     *ledger.Ledger
	Reconciler *reconcile.Reconciler
	Statements *statement.Service
	FX         *fx.Service
	Settings   *settings.Settings

	// Optional
	Auditor *ledger.DriftAuditor
	Queue   notify.Queue
	Ping    func(context.Context) error

	Log zerolog.Logger
}

// NewHandler creates a handler over the domain services.
func NewHandler(l *ledger.Ledger, rec *reconcile.Reconciler, stmts *statement.Service, fxs *fx.Service, cfg *settings.Settings, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      l.Store,
		Ledger:     l,
		Reconciler: rec,
		Statements: stmts,
		FX:         fxs,
		Settings:   cfg,
		Log:        log.With().Str("component", "api").Logger(),
	}
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the owner's wallet, healed from the ledger if it drifted.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ownerID := ledger.OwnerID(chi.URLParam(r, "id"))

	view, err := h.Ledger.GetWallet(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, WalletResponse{
		Wallet:                       toWalletDTO(view.Wallet),
		Transactions:                 toTransactionDTOs(view.Transactions),
		CalculatedBalance:            view.CalculatedBalance.StringFixed(2),
		CalculatedCommissionsPayable: view.CalculatedCommissionsPayable.StringFixed(2),
		Healed:                       view.Healed,
	})
}

// PayCommission records a commission payment.
// POST /api/owners/{id}/wallet/commission-payments
func (h *Handler) PayCommission(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, h.Ledger.PayCommission, notify.EventCommissionPaid)
}

// PayBalance records a payment against a negative balance.
// POST /api/owners/{id}/wallet/balance-payments
func (h *Handler) PayBalance(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, h.Ledger.PayBalance, notify.EventBalancePaid)
}

type payFunc func(context.Context, ledger.PaymentRequest) (*ledger.PaymentResult, error)

func (h *Handler) pay(w http.ResponseWriter, r *http.Request, pay payFunc, event string) {
	ownerID := ledger.OwnerID(chi.URLParam(r, "id"))

	var req PaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	currency, _ := ledger.ParseCurrency(req.Currency)

	res, err := pay(r.Context(), ledger.PaymentRequest{
		OwnerID:        ownerID,
		Amount:         decimal.RequireFromString(req.Amount),
		Currency:       currency,
		Reference:      req.Reference,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Actor:          ledger.UserID(req.Actor),
	})
	if err != nil {
		h.writeDomainError(w, "Payment rejected", err)
		return
	}

	h.enqueue(r.Context(), notify.NewMessage(
		notify.WithEvent(event),
		notify.WithOwner(string(ownerID)),
		notify.WithPayload("transaction_id", string(res.Transaction.ID)),
		notify.WithPayload("current_balance", res.Wallet.CurrentBalance.StringFixed(2)),
		notify.WithPayload("commissions_payable", res.Wallet.CommissionsPayable.StringFixed(2)),
		notify.WithPayload("currency", string(res.Wallet.Currency)),
	))

	writeJSON(w, http.StatusCreated, PaymentResponse{
		Wallet:      toWalletDTO(res.Wallet),
		Transaction: toTransactionDTO(res.Transaction),
	})
}

// ListTransactions returns the owner's full ledger, oldest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := ledger.OwnerID(chi.URLParam(r, "id"))

	owner, err := h.Store.GetOwner(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to get owner", err)
		return
	}
	if owner == nil {
		writeError(w, http.StatusNotFound, "Owner not found", nil)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateTransaction appends a manual entry and resyncs the wallet.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID := ledger.OwnerID(chi.URLParam(r, "id"))

	var req CreateTransactionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	currency, _ := ledger.ParseCurrency(req.Currency)

	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse(dateLayout, req.Date)
	}

	tx, err := h.Ledger.CreateTransaction(r.Context(), ledger.TransactionRequest{
		OwnerID:        ownerID,
		Type:           ledger.TransactionType(req.Type),
		Amount:         decimal.RequireFromString(req.Amount),
		Currency:       currency,
		ReferenceID:    req.ReferenceID,
		Notes:          req.Notes,
		Date:           date,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Actor:          ledger.UserID(req.Actor),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// ListStatements lists statements, optionally by owner and status.
// GET /api/statements?owner_id=&status=
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	var filter ledger.StatementFilter
	if v := r.URL.Query().Get("owner_id"); v != "" {
		ownerID := ledger.OwnerID(v)
		filter.OwnerID = &ownerID
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := ledger.StatementStatus(strings.ToUpper(v))
		if status != ledger.StatementDraft && status != ledger.StatementFinalized {
			writeError(w, http.StatusBadRequest, "status must be DRAFT or FINALIZED", nil)
			return
		}
		filter.Status = &status
	}

	sts, err := h.Statements.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list statements", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(sts))
}

// GenerateStatement previews a statement, or persists it as a draft when save is set.
func (h *Handler) GenerateStatement(w http.ResponseWriter, r *http.Request) {
	var req GenerateStatementRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sreq := statement.Request{
		OwnerID:         ledger.OwnerID(req.OwnerID),
		PeriodStart:     mustDate(req.PeriodStart),
		PeriodEnd:       mustDate(req.PeriodEnd),
		DisplayCurrency: optionalCurrency(req.DisplayCurrency),
	}

	var (
		st     *ledger.Statement
		err    error
		status = http.StatusOK
	)
	if req.Save {
		st, err = h.Statements.CreateDraft(r.Context(), sreq)
		status = http.StatusCreated
	} else {
		st, err = h.Statements.Preview(r.Context(), sreq)
	}
	if err != nil {
		h.writeDomainError(w, "Failed to generate statement", err)
		return
	}
	writeJSON(w, status, toStatementDTO(*st))
}

// GenerateAllResponse carries the generated statements and per-owner failures.
type GenerateAllResponse struct {
	Statements []StatementDTO `json:"statements"`
	Errors     []string       `json:"errors,omitempty"`
}

// GenerateAllStatements generates a statement for every owner with activity.
func (h *Handler) GenerateAllStatements(w http.ResponseWriter, r *http.Request) {
	var req GenerateAllRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sts, err := h.Statements.GenerateAll(r.Context(), mustDate(req.PeriodStart), mustDate(req.PeriodEnd),
		optionalCurrency(req.DisplayCurrency), req.Save)
	if err != nil && len(sts) == 0 {
		h.writeDomainError(w, "Failed to generate statements", err)
		return
	}

	resp := GenerateAllResponse{Statements: toStatementDTOs(sts)}
	if err != nil {
		// Partial success: some owners failed
		resp.Errors = strings.Split(err.Error(), "\n")
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStatement returns one statement with its lines.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Statements.Get(r.Context(), ledger.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*st))
}

// GetStatementDocument renders a stored statement with current branding.
func (h *Handler) GetStatementDocument(w http.ResponseWriter, r *http.Request) {
	st, err := h.Statements.Get(r.Context(), ledger.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get statement", err)
		return
	}

	content, err := h.Statements.Render(r.Context(), *st)
	if err != nil {
		h.writeDomainError(w, "Failed to render statement", err)
		return
	}
	writeDocument(w, h.Statements.Renderer.ContentType(), *st, content)
}

// RegenerateStatement recomputes a draft in place.
func (h *Handler) RegenerateStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Statements.Regenerate(r.Context(), ledger.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to regenerate statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*st))
}

// FinalizeStatement posts the statement net and returns the rendered
// document. If only rendering failed the finalized statement is returned
// as JSON.
func (h *Handler) FinalizeStatement(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	doc, err := h.Statements.FinalizeDocument(r.Context(), ledger.StatementID(chi.URLParam(r, "id")), ledger.UserID(req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to finalize statement", err)
		return
	}
	if doc.Content == nil {
		writeJSON(w, http.StatusOK, toStatementDTO(doc.Statement))
		return
	}
	writeDocument(w, doc.ContentType, doc.Statement, doc.Content)
}

func writeDocument(w http.ResponseWriter, contentType string, st ledger.Statement, content []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Statement-ID", string(st.ID))
	w.Header().Set("X-Statement-Status", string(st.Status))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking saves a new booking and accrues commission if the owner
// received the payment.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	res, err := h.Reconciler.Create(r.Context(), toBooking(req))
	if err != nil {
		h.writeDomainError(w, "Failed to save booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReconcileResponse(res))
}

// UpdateBooking saves an edit and posts the commission adjustment for the
// routing transition.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")

	res, err := h.Reconciler.ApplyByID(r.Context(), toBooking(req))
	if err != nil {
		h.writeDomainError(w, "Failed to save booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileResponse(res))
}

func toBooking(req BookingRequest) ledger.Booking {
	currency, _ := ledger.ParseCurrency(req.Currency)
	return ledger.Booking{
		ID:                ledger.BookingID(req.ID),
		PropertyID:        ledger.PropertyID(req.PropertyID),
		OwnerID:           ledger.OwnerID(req.OwnerID),
		GuestName:         req.GuestName,
		Currency:          currency,
		BaseAmount:        decimal.RequireFromString(req.BaseAmount),
		CleaningFee:       optionalDecimal(req.CleaningFee),
		PlatformFees:      optionalDecimal(req.PlatformFees),
		Taxes:             optionalDecimal(req.Taxes),
		PaymentReceivedBy: ledger.PaymentParty(req.PaymentReceivedBy),
		Status:            ledger.BookingStatus(req.Status),
		CheckInDate:       mustDate(req.CheckInDate),
		CheckOutDate:      mustDate(req.CheckOutDate),
	}
}

// =============================================================================
// FX / SETTINGS HANDLERS
// =============================================================================

// GetRates returns the effective rate table and where each rate came from.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	entries, err := h.FX.Rates(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to get rates", err)
		return
	}
	writeJSON(w, http.StatusOK, RatesResponse{Base: string(h.FX.Base), Rates: toRateDTOs(entries)})
}

// Convert converts an amount between two currencies.
// GET /api/fx/convert?amount=&from=&to=
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number", err)
		return
	}
	from, err := ledger.ParseCurrency(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from currency", err)
		return
	}
	to, err := ledger.ParseCurrency(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to currency", err)
		return
	}

	converted, err := h.FX.Convert(r.Context(), amount, from, to)
	if err != nil {
		h.writeDomainError(w, "Conversion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertResponse{
		Amount:    amount.String(),
		From:      string(from),
		To:        string(to),
		Converted: converted.StringFixed(2),
	})
}

// PutSetting stores a setting. FX rate keys must hold a positive decimal.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req SettingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if strings.HasPrefix(key, settings.FXRateKey("")) {
		rate, err := decimal.NewFromString(req.Value)
		if err != nil || !rate.IsPositive() {
			writeError(w, http.StatusBadRequest, "FX rate must be a positive decimal", err)
			return
		}
	}

	if err := h.Settings.Set(r.Context(), key, req.Value); err != nil {
		h.writeDomainError(w, "Failed to save setting", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunDriftAudit runs the wallet drift audit now instead of waiting for the schedule.
func (h *Handler) RunDriftAudit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "Drift audit not configured", nil)
		return
	}

	report, err := h.Auditor.Audit(r.Context())
	if err != nil {
		h.writeDomainError(w, "Drift audit failed", err)
		return
	}

	drifted := make([]string, len(report.Drifted))
	for i, id := range report.Drifted {
		drifted[i] = string(id)
	}
	writeJSON(w, http.StatusOK, DriftReportDTO{
		Checked:    report.Checked,
		Drifted:    drifted,
		Healed:     report.Healed,
		Failed:     report.Failed,
		DurationMS: report.Duration.Milliseconds(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// enqueue hands a message to the notification queue. Delivery problems
// never fail the request that caused them.
func (h *Handler) enqueue(ctx context.Context, m notify.Message) {
	if h.Queue == nil {
		return
	}
	if err := h.Queue.Enqueue(ctx, m); err != nil {
		h.Log.Warn().Err(err).Str("event", m.Event).Str("owner_id", m.OwnerID).Msg("Failed to enqueue notification")
	}
}

// writeDomainError maps ledger error categories to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var (
		insufficient *ledger.InsufficientCommissionError
		exceeds      *ledger.ExceedsOutstandingError
	)
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Details: map[string]string{
				"available": insufficient.Available.StringFixed(2),
				"requested": insufficient.Requested.StringFixed(2),
				"shortfall": insufficient.Shortfall.StringFixed(2),
				"currency":  string(insufficient.Currency),
			},
		})
	case errors.As(err, &exceeds):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Details: map[string]string{
				"max_payable": exceeds.MaxPayable.StringFixed(2),
				"requested":   exceeds.Requested.StringFixed(2),
				"currency":    string(exceeds.Currency),
			},
		})
	case errors.Is(err, ledger.ErrNoOutstandingBalance):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, context.Canceled):
		// Client went away
	default:
		h.Log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decodeAndValidate decodes the JSON body into dst and runs tag
// validation, writing the 400 itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if errs := ValidateStruct(dst); len(errs) > 0 {
		respondWithValidationErrors(w, errs)
		return false
	}
	return true
}

// mustDate parses a date that already passed datetime validation.
func mustDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func optionalCurrency(s string) ledger.Currency {
	if s == "" {
		return ""
	}
	c, _ := ledger.ParseCurrency(s)
	return c
}

func optionalDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
