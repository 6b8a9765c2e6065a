// Package config loads and validates application configuration from
// environment variables and the optional worker registry file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/kensa/internal/worker"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // Must exceed RunBudget so synchronous runs are not cut short.
	ShutdownTimeout time.Duration

	// DatabaseURL selects the store: postgres://... or sqlite://path.
	DatabaseURL string

	// Run settings.
	RunBudget     time.Duration
	WorkerTimeout time.Duration // Per-call default for workers without their own timeout.
	StaleAfter    time.Duration

	// Worker registry.
	WorkersFile string
	Workers     []worker.Config

	// Rate limiting for POST /v1/runs, per client IP.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error
	cfg.Port, err = envInt("KENSA_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("KENSA_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("KENSA_WRITE_TIMEOUT", 90*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = envDuration("KENSA_SHUTDOWN_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.DatabaseURL = envStr("DATABASE_URL", "sqlite://data/kensa.db")
	cfg.RunBudget, err = envDuration("KENSA_RUN_BUDGET", 55*time.Second)
	collect(err)
	cfg.WorkerTimeout, err = envDuration("KENSA_WORKER_TIMEOUT", worker.DefaultTimeout)
	collect(err)
	cfg.StaleAfter, err = envDuration("KENSA_STALE_AFTER", 7*24*time.Hour)
	collect(err)
	cfg.WorkersFile = envStr("KENSA_WORKERS_FILE", "")
	cfg.RateLimitEnabled, err = envBool("KENSA_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("KENSA_RATE_LIMIT_RPS", 1)
	collect(err)
	cfg.RateLimitBurst, err = envInt("KENSA_RATE_LIMIT_BURST", 5)
	collect(err)
	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "kensa")
	cfg.OTELInsecure, err = envBool("KENSA_OTEL_INSECURE", false)
	collect(err)
	cfg.LogLevel = envStr("KENSA_LOG_LEVEL", "info")
	maxBody, err := envInt("KENSA_MAX_REQUEST_BODY_BYTES", 64*1024)
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	workers, err := LoadWorkers(cfg.WorkersFile)
	collect(err)
	cfg.Workers = workers

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if _, _, err := c.Storage(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: KENSA_PORT must be between 1 and 65535")
	}
	if c.RunBudget <= 0 {
		return fmt.Errorf("config: KENSA_RUN_BUDGET must be positive")
	}
	if c.WriteTimeout <= c.RunBudget {
		return fmt.Errorf("config: KENSA_WRITE_TIMEOUT (%s) must exceed KENSA_RUN_BUDGET (%s)", c.WriteTimeout, c.RunBudget)
	}
	if c.WorkerTimeout <= 0 || c.WorkerTimeout > c.RunBudget {
		return fmt.Errorf("config: KENSA_WORKER_TIMEOUT must be positive and at most KENSA_RUN_BUDGET (%s)", c.RunBudget)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("config: KENSA_STALE_AFTER must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: KENSA_RATE_LIMIT_RPS and KENSA_RATE_LIMIT_BURST must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: KENSA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return validateWorkers(c.Workers, c.RunBudget)
}

// Storage returns the store backend ("postgres" or "sqlite") and the DSN or
// file path to open it with.
func (c Config) Storage() (backend, dsn string, err error) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", c.DatabaseURL, nil
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		path := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("config: DATABASE_URL sqlite:// needs a file path")
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("config: DATABASE_URL must start with postgres:// or sqlite://")
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
