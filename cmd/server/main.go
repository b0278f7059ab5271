/*
main.go - Application entry point

PURPOSE:
  Starts the workforce engine: loads configuration, picks the store
  backend, wires client, cache, service, scheduler and router, and shuts
  everything down gracefully.

STARTUP SEQUENCE:
  1. Load .env and environment, apply command-line flags
  2. Initialize logging and (optionally) Sentry
  3. Open the store backend (remote, sqlite or memory)
  4. Build tabular client, cache and workforce service
  5. Bootstrap table headers
  6. Start the sweep scheduler
  7. Start the HTTP server

COMMAND-LINE FLAGS (override the environment):
  -port     HTTP server port
  -db       SQLite database path (":memory:" for in-memory)
  -backend  remote | sqlite | memory

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database and flush Sentry

EXAMPLES:
  # Local SQLite store
  ./server -db="./data/workforce.db"

  # Remote tabular service
  STORE_BACKEND=remote REMOTE_STORE_URL=https://tables.internal/v1 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - workforce/scheduler.go: Background sweep
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/api"
	"github.com/warp/workforce-engine/config"
	"github.com/warp/workforce-engine/logging"
	"github.com/warp/workforce-engine/store/memory"
	"github.com/warp/workforce-engine/store/remote"
	"github.com/warp/workforce-engine/store/sqlite"
	"github.com/warp/workforce-engine/tabular"
	"github.com/warp/workforce-engine/workforce"
)

func main() {
	cfg := config.Load()

	// Flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Store backend: remote, sqlite or memory")
	flag.Parse()

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Sentry error tracking
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			logger.Error().Err(err).Msg("sentry init failed")
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Store
	backend, closer, err := openBackend(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("failed to open store")
	}
	defer closer.Close()

	client := tabular.NewClient(backend,
		tabular.WithLogger(logger.With().Str("component", "tabular").Logger()),
		tabular.WithRetryPolicy(tabular.NewRetryPolicy(logger)),
		tabular.WithCallTimeout(cfg.CallTimeout),
	)
	cache := tabular.NewCache(logger.With().Str("component", "cache").Logger())

	svc := workforce.NewService(client, cache, workforce.Options{
		TTLs: workforce.TTLs{
			Users:        cfg.UsersTTL,
			Tasks:        cfg.TasksTTL,
			Applications: cfg.ApplicationsTTL,
			Bugs:         cfg.BugsTTL,
		},
		Logger: logger,
	})

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := svc.Bootstrap(bootCtx); err != nil {
		// Tables heal on first access, so a failed bootstrap is not fatal.
		logger.Warn().Err(err).Msg("bootstrap failed, continuing")
	}
	cancelBoot()

	// Scheduler
	scheduler := workforce.NewScheduler(svc, logger)
	scheduler.Enabled = cfg.SweepEnabled
	scheduler.Interval = cfg.SweepInterval
	scheduler.MaxBackoff = cfg.SweepMaxBackoff
	scheduler.Warnings = cfg.WarningsEnabled
	if sentryEnabled {
		scheduler.OnError = func(err error) { sentry.CaptureException(err) }
	}
	scheduler.Start()

	// Router
	opts := api.RouterOptions{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Sentry:      sentryEnabled,
	}
	if cfg.ServeTabular {
		opts.Tabular = remote.NewHandler(backend, cfg.RemoteToken, logger)
	}
	router := api.NewRouter(api.NewHandler(svc, scheduler), opts)

	// Quota retries alone can hold a request for over two minutes.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", cfg.Port).
			Str("backend", cfg.Backend).
			Bool("scheduler", cfg.SweepEnabled).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openBackend returns the configured backend and what to close on exit.
func openBackend(cfg *config.Config, logger zerolog.Logger) (tabular.Backend, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		b := remote.New(cfg.RemoteURL, cfg.RemoteToken, logger.With().Str("component", "remote").Logger())
		return b, nopCloser{}, nil
	case config.BackendMemory:
		return memory.New(), nopCloser{}, nil
	default:
		b, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	}
}
