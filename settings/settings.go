/*
Package settings is the key/value configuration collaborator.

PURPOSE:
  Runtime-editable values that are not worth a schema of their own: FX
  rates and statement branding. Values are strings; typed accessors parse
  them and fall back to a default with a warning when parsing fails.

KEYS:
  fx.rate.<CODE>          value of one unit of CODE in the base currency
  branding.company_name   statement header
  branding.logo_url       statement logo
  branding.theme_color    statement accent colour

IMPLEMENTATIONS:
  - Memory (this file): tests and demos
  - store/sqlite: settings table
*/
package settings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	KeyCompanyName = "branding.company_name"
	KeyLogoURL     = "branding.logo_url"
	KeyThemeColor  = "branding.theme_color"

	fxRatePrefix = "fx.rate."
)

// FXRateKey returns the settings key holding a currency's rate.
func FXRateKey(currency string) string {
	return fxRatePrefix + strings.ToUpper(currency)
}

// Store persists settings. GetSetting returns nil, nil when the key is absent.
type Store interface {
	GetSetting(ctx context.Context, key string) (*string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
}

// =============================================================================
// TYPED ACCESS
// =============================================================================

type Settings struct {
	Store Store
	Log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Settings {
	return &Settings{
		Store: store,
		Log:   log.With().Str("component", "settings").Logger(),
	}
}

// String returns the value of key or defaultValue when absent or empty.
func (s *Settings) String(ctx context.Context, key, defaultValue string) (string, error) {
	value, err := s.Store.GetSetting(ctx, key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil || strings.TrimSpace(*value) == "" {
		return defaultValue, nil
	}
	return *value, nil
}

// Decimal returns the value of key as a decimal. ok is false when the key is
// absent or its value does not parse.
func (s *Settings) Decimal(ctx context.Context, key string) (d decimal.Decimal, ok bool, err error) {
	value, err := s.Store.GetSetting(ctx, key)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	if value == nil {
		return decimal.Zero, false, nil
	}

	d, err = decimal.NewFromString(strings.TrimSpace(*value))
	if err != nil {
		s.Log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse decimal setting")
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

// Set writes a value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	return s.Store.SetSetting(ctx, key, value)
}

// FXRates returns every fx.rate.* setting keyed by currency code. Values
// that do not parse are skipped.
func (s *Settings) FXRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	all, err := s.Store.ListSettings(ctx)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal)
	for k, v := range all {
		if !strings.HasPrefix(k, fxRatePrefix) {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			s.Log.Warn().Err(err).Str("key", k).Str("value", v).Msg("Skipping unparsable FX rate")
			continue
		}
		rates[strings.TrimPrefix(k, fxRatePrefix)] = d
	}
	return rates, nil
}

// =============================================================================
// BRANDING
// =============================================================================

type Branding struct {
	CompanyName string
	LogoURL     string
	ThemeColor  string
}

var DefaultBranding = Branding{
	CompanyName: "Property Management",
	ThemeColor:  "#1F6FEB",
}

// Branding loads statement branding. Lookup failures fall back to defaults;
// branding never blocks a financial operation.
func (s *Settings) Branding(ctx context.Context) Branding {
	b := DefaultBranding
	var err error
	if b.CompanyName, err = s.String(ctx, KeyCompanyName, DefaultBranding.CompanyName); err != nil {
		s.Log.Warn().Err(err).Msg("Failed to load branding, using defaults")
		return DefaultBranding
	}
	b.LogoURL, _ = s.String(ctx, KeyLogoURL, DefaultBranding.LogoURL)
	b.ThemeColor, _ = s.String(ctx, KeyThemeColor, DefaultBranding.ThemeColor)
	return b
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) GetSetting(_ context.Context, key string) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) ListSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
