package render_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/render"
	"github.com/hosthub/owner-ledger/settings"
)

func TestTextRenderer_IncludesBrandingLinesAndTotals(t *testing.T) {
	st := ledger.Statement{
		ID:              "st-1",
		OwnerID:         "owner-1",
		PeriodStart:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:       time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:          ledger.StatementFinalized,
		DisplayCurrency: "GHS",
		NetToOwner:      decimal.RequireFromString("715"),
		Lines: []ledger.StatementLine{
			{Type: ledger.LineBooking, Description: "Booking bk-1", Amount: decimal.RequireFromString("1000"), Date: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		},
	}
	b := settings.Branding{CompanyName: "Coastal Stays", LogoURL: "https://cdn.example.com/logo.png"}

	out, err := render.TextRenderer{}.Render(context.Background(), st, ledger.Owner{ID: "owner-1", Name: "Ama Mensah"}, b)
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "Coastal Stays")
	assert.Contains(t, text, "https://cdn.example.com/logo.png")
	assert.Contains(t, text, "Ama Mensah")
	assert.Contains(t, text, "2025-01-01 to 2025-01-31")
	assert.Contains(t, text, "Booking bk-1")
	assert.Contains(t, text, "1000.00")
	assert.Contains(t, text, "715.00 GHS")
	assert.Equal(t, "text/plain; charset=utf-8", render.TextRenderer{}.ContentType())
}
