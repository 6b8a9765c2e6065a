package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kensa/internal/orchestrator"
	"github.com/ashita-ai/kensa/internal/ratelimit"
)

// Pinger is the slice of the store the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
}

// Server is the Kensa HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig carries what New needs. Limiter, MCPServer and OpenAPISpec
// may be nil.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Store        Pinger
	Logger       *slog.Logger

	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte
}

// New builds the server and its route table.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Orchestrator:        cfg.Orchestrator,
		Store:               cfg.Store,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	handler := chain(routes(h, cfg),
		requestIDMiddleware,
		securityHeadersMiddleware,
		tracingMiddleware,
		func(next http.Handler) http.Handler { return loggingMiddleware(cfg.Logger, next) },
		func(next http.Handler) http.Handler { return recoveryMiddleware(cfg.Logger, next) },
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

const readHeaderTimeout = 10 * time.Second

func routes(h *Handlers, cfg ServerConfig) *http.ServeMux {
	reqID := func(r *http.Request) string { return RequestIDFromContext(r.Context()) }
	limitStarts := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqID, cfg.Logger)

	mux := http.NewServeMux()
	// Starting a run fans out to every worker, so it alone is rate limited.
	mux.Handle("POST /v1/runs", limitStarts(http.HandlerFunc(h.HandleStartRun)))
	mux.HandleFunc("GET /v1/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /v1/runs/{run_id}/report", h.HandleGetReport)
	mux.HandleFunc("GET /v1/sites/{domain}/health", h.HandleSiteHealth)
	mux.HandleFunc("GET /v1/workers", h.HandleListWorkers)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}
	return mux
}

// chain wraps h so that the first middleware listed runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Start listens on the configured port and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("kensa listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("kensa draining http connections")
	return s.httpServer.Shutdown(ctx)
}
