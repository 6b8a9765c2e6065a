package kensa

import (
	"log/slog"
	"net/http"
)

// Option overrides one setting of New. Options win over the environment.
type Option func(*appOptions)

type appOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	httpClient  *http.Client
}

// WithPort replaces KENSA_PORT.
func WithPort(port int) Option {
	return func(o *appOptions) { o.port = port }
}

// WithDatabaseURL replaces DATABASE_URL: postgres:// or sqlite://<path>.
func WithDatabaseURL(url string) Option {
	return func(o *appOptions) { o.databaseURL = url }
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) { o.logger = logger }
}

// WithVersion sets the version reported by /health, MCP and the OTel resource.
func WithVersion(version string) Option {
	return func(o *appOptions) { o.version = version }
}

// WithHTTPClient replaces the client used to call workers. The default
// client wraps http.DefaultTransport with otelhttp.
func WithHTTPClient(c *http.Client) Option {
	return func(o *appOptions) { o.httpClient = c }
}
