/*
Package fx converts money between currencies.

RATES:
  A rate is the value of one unit of a currency in the base currency
  (default GHS). Conversion goes through the base:

      converted = amount × rate(from) ÷ rate(to)      rounded to 2 dp

  Rates come from the settings store (fx.rate.<CODE>). A missing,
  unparsable, zero or negative setting falls back to the built-in table.
  The base currency is always 1.

IDENTITY:
  Convert(x, C, C) returns x unchanged, without rounding.
*/
package fx

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/metrics"
	"github.com/hosthub/owner-ledger/settings"
)

// ErrUnsupportedCurrency is returned for a currency with neither a
// configured nor a built-in rate.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// DefaultBase is the currency the built-in table is expressed in.
const DefaultBase ledger.Currency = "GHS"

// DefaultRates are GHS per unit.
var DefaultRates = map[ledger.Currency]decimal.Decimal{
	"GHS": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("15.50"),
	"EUR": decimal.RequireFromString("16.80"),
	"GBP": decimal.RequireFromString("19.60"),
	"NGN": decimal.RequireFromString("0.0105"),
	"KES": decimal.RequireFromString("0.12"),
	"ZAR": decimal.RequireFromString("0.85"),
}

type Service struct {
	Settings *settings.Settings
	Base     ledger.Currency
	Log      zerolog.Logger
}

func New(s *settings.Settings, base ledger.Currency, log zerolog.Logger) *Service {
	if base == "" {
		base = DefaultBase
	}
	return &Service{
		Settings: s,
		Base:     base,
		Log:      log.With().Str("component", "fx").Logger(),
	}
}

// Convert converts amount from one currency to another.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to ledger.Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	fromRate, err := s.Rate(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := s.Rate(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}

	return ledger.Round(amount.Mul(fromRate).Div(toRate)), nil
}

// Rate returns the value of one unit of c in the base currency.
func (s *Service) Rate(ctx context.Context, c ledger.Currency) (decimal.Decimal, error) {
	if !c.Valid() {
		return decimal.Zero, &ledger.ValidationError{Field: "currency", Message: "invalid currency code " + string(c), Err: ledger.ErrInvalidCurrency}
	}
	if c == s.Base {
		return decimal.NewFromInt(1), nil
	}

	if s.Settings != nil {
		rate, ok, err := s.Settings.Decimal(ctx, settings.FXRateKey(string(c)))
		if err != nil {
			s.Log.Warn().Err(err).Str("currency", string(c)).Msg("FX rate lookup failed, using default")
		} else if ok && rate.IsPositive() {
			return rate, nil
		} else if ok {
			s.Log.Warn().Str("currency", string(c)).Str("rate", rate.String()).Msg("Non-positive FX rate configured, using default")
		}
	}

	rate, ok := s.defaultRate(c)
	if !ok {
		return decimal.Zero, &ledger.ValidationError{Field: "currency", Message: "no exchange rate for " + string(c), Err: ErrUnsupportedCurrency}
	}
	metrics.RecordFXFallback(string(c))
	return rate, nil
}

// defaultRate rebases the built-in GHS table onto s.Base.
func (s *Service) defaultRate(c ledger.Currency) (decimal.Decimal, bool) {
	rate, ok := DefaultRates[c]
	if !ok {
		return decimal.Zero, false
	}
	if s.Base == DefaultBase {
		return rate, true
	}
	base, ok := DefaultRates[s.Base]
	if !ok {
		return decimal.Zero, false
	}
	return rate.Div(base), true
}

// RateEntry is one row of the effective rate table.
type RateEntry struct {
	Currency ledger.Currency
	Rate     decimal.Decimal
	Source   string // "base", "setting" or "default"
}

// Rates returns the effective rate for every known currency, sorted by code.
func (s *Service) Rates(ctx context.Context) ([]RateEntry, error) {
	configured := map[string]decimal.Decimal{}
	if s.Settings != nil {
		var err error
		if configured, err = s.Settings.FXRates(ctx); err != nil {
			return nil, err
		}
	}

	codes := map[ledger.Currency]bool{s.Base: true}
	for c := range DefaultRates {
		codes[c] = true
	}
	for c := range configured {
		if cur := ledger.Currency(c); cur.Valid() {
			codes[cur] = true
		}
	}

	entries := make([]RateEntry, 0, len(codes))
	for c := range codes {
		switch r, ok := configured[string(c)]; {
		case c == s.Base:
			entries = append(entries, RateEntry{Currency: c, Rate: decimal.NewFromInt(1), Source: "base"})
		case ok && r.IsPositive():
			entries = append(entries, RateEntry{Currency: c, Rate: r, Source: "setting"})
		default:
			if d, ok := s.defaultRate(c); ok {
				entries = append(entries, RateEntry{Currency: c, Rate: d, Source: "default"})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Currency < entries[j].Currency })
	return entries, nil
}

var _ ledger.Converter = (*Service)(nil)
