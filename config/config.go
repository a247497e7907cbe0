package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DatabasePath string
	LogLevel     string
	LogPretty    bool
	CORSOrigins  []string

	// FX
	FXBaseCurrency string

	// Notifications: empty RedisAddr means the in-process channel queue
	RedisAddr         string
	RedisQueueKey     string
	NotifyMaxAttempts int
	NotifyRetryDelay  time.Duration

	// Drift audit, cron schedule with seconds field
	DriftAuditSchedule string
	DriftAutoHeal      bool

	// Per-client rate limit
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8080),
		DatabasePath:       getEnv("DATABASE_PATH", "owner_ledger.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		FXBaseCurrency:     strings.ToUpper(getEnv("FX_BASE_CURRENCY", "GHS")),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisQueueKey:      getEnv("REDIS_QUEUE_KEY", "owner-ledger:notifications"),
		NotifyMaxAttempts:  getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyRetryDelay:   getEnvAsDuration("NOTIFY_RETRY_DELAY", 5*time.Second),
		DriftAuditSchedule: getEnv("DRIFT_AUDIT_SCHEDULE", "0 0 3 * * *"),
		DriftAutoHeal:      getEnvAsBool("DRIFT_AUTO_HEAL", true),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.FXBaseCurrency) != 3 {
		return fmt.Errorf("FX_BASE_CURRENCY must be a 3-letter code, got %q", c.FXBaseCurrency)
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
