/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the owner ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional .env)
  2. Initialize logger
  3. Initialize SQLite store
  4. Build settings, FX, ledger, reconciler and statement services
  5. Start the notification worker (Redis or in-process queue)
  6. Schedule the wallet drift audit
  7. Configure HTTP router and start the server

ENVIRONMENT:
  PORT, DATABASE_PATH, LOG_LEVEL, LOG_PRETTY, CORS_ORIGINS,
  FX_BASE_CURRENCY, REDIS_ADDR, REDIS_QUEUE_KEY, NOTIFY_MAX_ATTEMPTS,
  NOTIFY_RETRY_DELAY, DRIFT_AUDIT_SCHEDULE, DRIFT_AUTO_HEAL,
  RATE_LIMIT_RPS, RATE_LIMIT_BURST. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, drain the notification worker
  4. Close database connection

EXAMPLES:
  # Run with file database
  DATABASE_PATH=./data/ledger.db ./server

  # Run with console logs and a faster drift audit
  LOG_PRETTY=true DRIFT_AUDIT_SCHEDULE="@every 10m" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hosthub/owner-ledger/api"
	"github.com/hosthub/owner-ledger/commission"
	"github.com/hosthub/owner-ledger/config"
	"github.com/hosthub/owner-ledger/fx"
	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/logger"
	"github.com/hosthub/owner-ledger/notify"
	"github.com/hosthub/owner-ledger/reconcile"
	"github.com/hosthub/owner-ledger/render"
	"github.com/hosthub/owner-ledger/scheduler"
	"github.com/hosthub/owner-ledger/settings"
	"github.com/hosthub/owner-ledger/statement"
	"github.com/hosthub/owner-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Domain services
	cfgStore := settings.New(store, log)
	conv := fx.New(cfgStore, ledger.Currency(cfg.FXBaseCurrency), log)
	l := ledger.NewLedger(store, conv, log)
	rec := reconcile.New(l, commission.NewCalculator(conv), log)

	// Notifications
	queue := newQueue(cfg, log)
	worker := notify.NewWorker(queue, notify.NewLogNotifier(log), cfg.NotifyMaxAttempts, cfg.NotifyRetryDelay, log)
	worker.Start()

	stmts := statement.NewService(
		statement.NewGenerator(store, conv, log),
		statement.NewFinalizer(l, queue, log),
		render.TextRenderer{}, cfgStore, log,
	)

	// Drift audit
	auditor := ledger.NewDriftAuditor(l, cfg.DriftAutoHeal, log)
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.DriftAuditSchedule, auditor); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.DriftAuditSchedule).Msg("Failed to schedule drift audit")
	}
	sched.Start()

	// HTTP
	handler := api.NewHandler(l, rec, stmts, conv, cfgStore, log)
	handler.Auditor = auditor
	handler.Queue = queue
	handler.Ping = store.Ping

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Log:            log,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Str("fx_base", string(conv.Base)).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	sched.Stop()
	worker.Shutdown()
	if c, ok := queue.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close notification queue")
		}
	}

	log.Info().Msg("Server stopped")
}

// newQueue uses Redis when configured and reachable, the in-process queue otherwise.
func newQueue(cfg *config.Config, log zerolog.Logger) notify.Queue {
	if cfg.RedisAddr == "" {
		return notify.NewChannelQueue(1024)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := notify.DialRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, using in-process notification queue")
		return notify.NewChannelQueue(1024)
	}
	log.Info().Str("addr", cfg.RedisAddr).Str("key", cfg.RedisQueueKey).Msg("Using Redis notification queue")
	return notify.NewRedisQueue(rdb, cfg.RedisQueueKey)
}
