package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_PATH", "LOG_LEVEL", "CORS_ORIGINS", "FX_BASE_CURRENCY", "REDIS_ADDR", "NOTIFY_RETRY_DELAY", "DRIFT_AUTO_HEAL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "owner_ledger.db", cfg.DatabasePath)
	assert.Equal(t, "GHS", cfg.FXBaseCurrency)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.NotifyRetryDelay)
	assert.True(t, cfg.DriftAutoHeal)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FX_BASE_CURRENCY", "usd")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("NOTIFY_RETRY_DELAY", "250ms")
	t.Setenv("DRIFT_AUTO_HEAL", "false")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "USD", cfg.FXBaseCurrency)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.NotifyRetryDelay)
	assert.False(t, cfg.DriftAutoHeal)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoad_InvalidValuesFallBackOrFail(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("FX_BASE_CURRENCY", "CEDI")

	_, err := Load()
	assert.ErrorContains(t, err, "FX_BASE_CURRENCY")
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8080, DatabasePath: "x.db", FXBaseCurrency: "GHS", NotifyMaxAttempts: 1, RateLimitRPS: 1, RateLimitBurst: 1}
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.DatabasePath = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Port = 70000
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.NotifyMaxAttempts = 0
	assert.Error(t, bad.Validate())
}
