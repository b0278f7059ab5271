/*
Package config loads process configuration from the environment.

SOURCES (later wins):
  1. Built-in defaults
  2. A .env file in the working directory, if present
  3. Process environment
  4. Command-line flags (port, db, backend) applied by cmd/server

ENVIRONMENT:
  PORT                 HTTP port (8080)
  STORE_BACKEND        remote | sqlite | memory (sqlite)
  DB_PATH              SQLite database path (workforce.db)
  REMOTE_STORE_URL     Base URL of the remote tabular service
  REMOTE_STORE_TOKEN   Bearer token for the remote tabular service
  SERVE_TABULAR        Expose the local store under /tabular (false)
  CALL_TIMEOUT         Per remote call deadline (30s)
  CACHE_TTL_USERS      (5m)
  CACHE_TTL_TASKS      (2m)
  CACHE_TTL_APPS       (2m)
  CACHE_TTL_BUGS       (2m)
  SWEEP_ENABLED        Run the background sweep (true)
  SWEEP_INTERVAL       (1h)
  SWEEP_MAX_BACKOFF    (6h)
  WARNINGS_ENABLED     Issue warnings from the sweep (true)
  LOG_LEVEL            debug | info | warn | error (info)
  LOG_FORMAT           json | console (json)
  CORS_ORIGINS         Comma separated (*)
  SENTRY_DSN           Error reporting, disabled when empty
  APP_ENV              Reported to Sentry (development)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by STORE_BACKEND.
const (
	BackendRemote = "remote"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// Server
	Port        int
	CORSOrigins []string

	// Store
	Backend      string
	DBPath       string
	RemoteURL    string
	RemoteToken  string
	ServeTabular bool
	CallTimeout  time.Duration

	// Cache
	UsersTTL        time.Duration
	TasksTTL        time.Duration
	ApplicationsTTL time.Duration
	BugsTTL         time.Duration

	// Scheduler
	SweepEnabled    bool
	SweepInterval   time.Duration
	SweepMaxBackoff time.Duration
	WarningsEnabled bool

	// Observability
	LogLevel  string
	LogFormat string
	SentryDSN string
	AppEnv    string
}

// Load reads .env (when present) and the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:        getInt("PORT", 8080),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		Backend:      strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		DBPath:       getEnv("DB_PATH", "workforce.db"),
		RemoteURL:    getEnv("REMOTE_STORE_URL", ""),
		RemoteToken:  getEnv("REMOTE_STORE_TOKEN", ""),
		ServeTabular: getBool("SERVE_TABULAR", false),
		CallTimeout:  getDuration("CALL_TIMEOUT", 30*time.Second),

		UsersTTL:        getDuration("CACHE_TTL_USERS", 5*time.Minute),
		TasksTTL:        getDuration("CACHE_TTL_TASKS", 2*time.Minute),
		ApplicationsTTL: getDuration("CACHE_TTL_APPS", 2*time.Minute),
		BugsTTL:         getDuration("CACHE_TTL_BUGS", 2*time.Minute),

		SweepEnabled:    getBool("SWEEP_ENABLED", true),
		SweepInterval:   getDuration("SWEEP_INTERVAL", time.Hour),
		SweepMaxBackoff: getDuration("SWEEP_MAX_BACKOFF", 6*time.Hour),
		WarningsEnabled: getBool("WARNINGS_ENABLED", true),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		SentryDSN: getEnv("SENTRY_DSN", ""),
		AppEnv:    getEnv("APP_ENV", "development"),
	}
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("REMOTE_STORE_URL is required for the %s backend", BackendRemote)
		}
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the %s backend", BackendSQLite)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want remote, sqlite or memory)", c.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.ServeTabular && c.Backend == BackendRemote {
		return fmt.Errorf("SERVE_TABULAR needs a local backend")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
