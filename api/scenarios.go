/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  owner data for demos. Each scenario creates an owner, a property,
  bookings and expenses, going through the reconciler and ledger exactly
  as live traffic would, so wallets and transactions are consistent.

AVAILABLE SCENARIOS:
  worked-example:  One company-received and one owner-received booking,
                   expenses on both sides. March 2024 statement nets 715.00.
  owner-debt:      Owner starts with a -50.00 balance to pay down.
  routing-change:  A booking re-routed COMPANY -> OWNER -> COMPANY,
                   accruing and then reversing its commission.

HOW SCENARIOS WORK:
 1. Refuse if the scenario owner already exists (409)
 2. Save owner and property
 3. Save bookings through the reconciler
 4. Save expenses, post manual entries through the ledger

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "worked-example"}

NOTE:
  Scenarios never reset data. Owner IDs are fixed per scenario so each
  loads once per database.

SEE ALSO:
  - handlers.go: Shared helpers
  - reconcile/reconcile.go: Booking saves
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "worked-example",
		Name:        "Worked Example",
		Description: "Mixed payment routing with company and owner expenses; March 2024 nets 715.00 GHS",
	},
	{
		ID:          "owner-debt",
		Name:        "Owner Debt",
		Description: "Owner with a -50.00 GHS balance, ready for a balance payment",
	},
	{
		ID:          "routing-change",
		Name:        "Routing Change",
		Description: "Booking moved from company to owner and back, with commission adjustments",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]struct {
	owner ledger.OwnerID
	load  scenarioLoader
}{
	"worked-example": {"owner-1", loadWorkedExample},
	"owner-debt":     {"owner-2", loadOwnerDebt},
	"routing-change": {"owner-3", loadRoutingChange},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sc, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	existing, err := h.Store.GetOwner(r.Context(), sc.owner)
	if err != nil {
		h.writeDomainError(w, "Failed to check scenario owner", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Scenario already loaded", nil)
		return
	}

	if err := sc.load(r.Context(), h); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.Log.Info().Str("scenario", req.ScenarioID).Str("owner_id", string(sc.owner)).Msg("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"owner_id": string(sc.owner),
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func loadWorkedExample(ctx context.Context, h *Handler) error {
	if err := h.seedOwner(ctx, "owner-1", "Ama Mensah", "prop-1", "Osu Apartment", "0.15"); err != nil {
		return err
	}

	bookings := []ledger.Booking{
		demoBooking("bk-1001", "prop-1", "owner-1", "Kofi Boateng", "900", "100", ledger.PaidToCompany, date(2024, 3, 4), date(2024, 3, 8)),
		demoBooking("bk-1002", "prop-1", "owner-1", "Efua Owusu", "500", "0", ledger.PaidToOwner, date(2024, 3, 15), date(2024, 3, 18)),
	}
	for _, b := range bookings {
		if _, err := h.Reconciler.Create(ctx, b); err != nil {
			return fmt.Errorf("booking %s: %w", b.ID, err)
		}
	}

	expenses := []ledger.Expense{
		{ID: "exp-1001", PropertyID: "prop-1", OwnerID: "owner-1", Currency: "GHS", Amount: decimal.NewFromInt(100),
			PaidBy: ledger.PaidByCompany, Category: "maintenance", Description: "Plumbing repair", Date: date(2024, 3, 10)},
		{ID: "exp-1002", PropertyID: "prop-1", OwnerID: "owner-1", Currency: "GHS", Amount: decimal.NewFromInt(40),
			PaidBy: ledger.PaidByOwner, Category: "supplies", Description: "Linen restock", Date: date(2024, 3, 20)},
	}
	for _, e := range expenses {
		if err := h.Store.SaveExpense(ctx, e); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
	}
	return nil
}

func loadOwnerDebt(ctx context.Context, h *Handler) error {
	if err := h.seedOwner(ctx, "owner-2", "Yaw Asante", "prop-2", "East Legon Villa", "0.20"); err != nil {
		return err
	}

	_, err := h.Ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		OwnerID:  "owner-2",
		Type:     ledger.TxManualAdjustment,
		Amount:   decimal.NewFromInt(-50),
		Currency: "GHS",
		Notes:    "Damage deposit shortfall",
		Date:     date(2024, 3, 1),
		Actor:    "scenario",
	})
	return err
}

func loadRoutingChange(ctx context.Context, h *Handler) error {
	if err := h.seedOwner(ctx, "owner-3", "Akua Darko", "prop-3", "Labone Studio", "0.10"); err != nil {
		return err
	}

	b := demoBooking("bk-3001", "prop-3", "owner-3", "Nana Agyeman", "1200", "0", ledger.PaidToCompany, date(2024, 4, 2), date(2024, 4, 6))
	if _, err := h.Reconciler.Create(ctx, b); err != nil {
		return fmt.Errorf("booking %s: %w", b.ID, err)
	}
	for _, routing := range []ledger.PaymentParty{ledger.PaidToOwner, ledger.PaidToCompany} {
		b.PaymentReceivedBy = routing
		if _, err := h.Reconciler.ApplyByID(ctx, b); err != nil {
			return fmt.Errorf("booking %s (%s): %w", b.ID, routing, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedOwner(ctx context.Context, ownerID ledger.OwnerID, name string, propertyID ledger.PropertyID, propertyName, rate string) error {
	if err := h.Store.SaveOwner(ctx, ledger.Owner{
		ID:                ownerID,
		Name:              name,
		Email:             string(ownerID) + "@example.com",
		PreferredCurrency: "GHS",
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		return err
	}

	r := decimal.RequireFromString(rate)
	return h.Store.SaveProperty(ctx, ledger.Property{
		ID:                    propertyID,
		OwnerID:               ownerID,
		Name:                  propertyName,
		Currency:              "GHS",
		DefaultCommissionRate: &r,
	})
}

func demoBooking(id ledger.BookingID, propertyID ledger.PropertyID, ownerID ledger.OwnerID, guest, base, cleaning string, routing ledger.PaymentParty, in, out time.Time) ledger.Booking {
	return ledger.Booking{
		ID:                id,
		PropertyID:        propertyID,
		OwnerID:           ownerID,
		GuestName:         guest,
		Currency:          "GHS",
		BaseAmount:        decimal.RequireFromString(base),
		CleaningFee:       decimal.RequireFromString(cleaning),
		PaymentReceivedBy: routing,
		Status:            ledger.BookingCompleted,
		CheckInDate:       in,
		CheckOutDate:      out,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
