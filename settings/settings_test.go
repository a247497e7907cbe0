package settings_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/settings"
)

func TestDecimal_ParsesAndRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	mem := settings.NewMemory()
	s := settings.New(mem, zerolog.Nop())

	require.NoError(t, s.Set(ctx, settings.FXRateKey("usd"), "15.75"))
	require.NoError(t, s.Set(ctx, settings.FXRateKey("EUR"), "sixteen"))

	d, ok, err := s.Decimal(ctx, "fx.rate.USD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "15.75", d.StringFixed(2))

	_, ok, err = s.Decimal(ctx, "fx.rate.EUR")
	require.NoError(t, err)
	assert.False(t, ok, "unparsable value is treated as absent")

	_, ok, err = s.Decimal(ctx, "fx.rate.GBP")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFXRates_OnlyParsableRateKeys(t *testing.T) {
	ctx := context.Background()
	mem := settings.NewMemory()
	s := settings.New(mem, zerolog.Nop())

	require.NoError(t, s.Set(ctx, "fx.rate.USD", "15.5"))
	require.NoError(t, s.Set(ctx, "fx.rate.EUR", "bad"))
	require.NoError(t, s.Set(ctx, settings.KeyCompanyName, "Coastal Stays"))

	rates, err := s.FXRates(ctx)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
	assert.Equal(t, "15.50", rates["USD"].StringFixed(2))
	assert.Equal(t, []string{"branding.company_name", "fx.rate.EUR", "fx.rate.USD"}, mem.Keys())
}

func TestBranding_DefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	mem := settings.NewMemory()
	s := settings.New(mem, zerolog.Nop())

	assert.Equal(t, settings.DefaultBranding, s.Branding(ctx))

	require.NoError(t, s.Set(ctx, settings.KeyCompanyName, "Coastal Stays"))
	require.NoError(t, s.Set(ctx, settings.KeyLogoURL, "https://cdn.example.com/logo.png"))

	b := s.Branding(ctx)
	assert.Equal(t, "Coastal Stays", b.CompanyName)
	assert.Equal(t, "https://cdn.example.com/logo.png", b.LogoURL)
	assert.Equal(t, settings.DefaultBranding.ThemeColor, b.ThemeColor)
}

func TestSet_EmptyKeyRejected(t *testing.T) {
	s := settings.New(settings.NewMemory(), zerolog.Nop())
	assert.Error(t, s.Set(context.Background(), "  ", "x"))
}
