// Package kensa is the public API for embedding the Kensa diagnostic run
// server.
//
//	app, err := kensa.New(ctx,
//	    kensa.WithVersion(version),
//	    kensa.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the other way round.
package kensa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kensa/api"
	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/mcp"
	"github.com/ashita-ai/kensa/internal/orchestrator"
	"github.com/ashita-ai/kensa/internal/ratelimit"
	"github.com/ashita-ai/kensa/internal/server"
	"github.com/ashita-ai/kensa/internal/storage"
	"github.com/ashita-ai/kensa/internal/storage/sqlite"
	"github.com/ashita-ai/kensa/internal/telemetry"
	"github.com/ashita-ai/kensa/internal/worker"
	"github.com/ashita-ai/kensa/migrations"
)

// store is what the App needs from either storage backend.
type store interface {
	orchestrator.Store
	server.Pinger
	Close() error
}

// App owns the store, orchestrator and HTTP server of one Kensa process.
type App struct {
	cfg          config.Config
	store        store
	orch         *orchestrator.Orchestrator
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens and migrates the store and wires the
// orchestrator, MCP tools and HTTP routes. Serving starts with Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := appOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kensa starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	orch := orchestrator.New(st, worker.NewCaller(o.httpClient, cfg.WorkerTimeout, logger), orchestrator.Options{
		Workers:              cfg.Workers,
		RunBudget:            cfg.RunBudget,
		StaleAfter:           cfg.StaleAfter,
		DefaultWorkerTimeout: cfg.WorkerTimeout,
	}, logger)
	for _, w := range orch.Workers() {
		logger.Info("worker configured",
			"worker", w.Key, "agent", w.Agent, "resolvable", w.Resolvable, "timeout_ms", w.TimeoutMS)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(orch, logger, version)

	srv := server.New(server.ServerConfig{
		Orchestrator:        orch,
		Store:               st,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        st,
		orch:         orch,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// openStore selects the backend from DATABASE_URL. Postgres gets the
// embedded migrations; SQLite migrates itself on open.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, error) {
	backend, dsn, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	switch backend {
	case "postgres":
		db, err := storage.New(ctx, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("storage: postgres")
		return db, nil
	default:
		db, err := sqlite.Open(ctx, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("storage: sqlite", "path", dsn)
		return db, nil
	}
}

// Handler returns the root HTTP handler, for embedding in another server or
// for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On return, Shutdown has already been called.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	return errors.Join(runErr, a.Shutdown(context.Background()))
}

// Shutdown drains HTTP within ShutdownTimeout, then gives asynchronous runs
// up to the run budget to finalize. The store and telemetry close last.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kensa shutting down")
	var errs []error

	httpCtx, httpCancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	httpCancel()

	drainCtx, drainCancel := context.WithTimeout(ctx, a.cfg.RunBudget+10*time.Second)
	if err := a.orch.Drain(drainCtx); err != nil {
		a.logger.Warn("background runs still in flight at shutdown", "error", err)
	}
	drainCancel()

	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("kensa stopped")
	return errors.Join(errs...)
}
