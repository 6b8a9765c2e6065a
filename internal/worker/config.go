// Package worker calls remote diagnostic workers and converts every outcome,
// including transport failures and timeouts, into a WorkerCallResult.
package worker

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

// DefaultRunEndpoint is appended to the base URL when none is configured.
const DefaultRunEndpoint = "/run"

// DefaultTimeout is the per-call wait ceiling.
const DefaultTimeout = 30 * time.Second

// Config describes one remote worker.
type Config struct {
	Key         string
	Kind        normalize.WorkerKind
	Agent       string
	BaseURL     string
	RunEndpoint string
	APIKey      string
	RequiresKey bool
	Timeout     time.Duration
}

// Resolvable reports whether the worker can be called at all.
func (c Config) Resolvable() bool {
	return c.unresolvedReason() == ""
}

func (c Config) unresolvedReason() string {
	if strings.TrimSpace(c.BaseURL) == "" {
		return "no base URL configured"
	}
	if c.RequiresKey && c.APIKey == "" {
		return "API key required but not configured"
	}
	return ""
}

// ResolvedKind returns the configured kind, or the kind implied by the key.
func (c Config) ResolvedKind() normalize.WorkerKind {
	if c.Kind != "" {
		return c.Kind
	}
	return normalize.KindForKey(c.Key)
}

// AgentName returns the agent that owns this worker.
func (c Config) AgentName() string {
	if c.Agent != "" {
		return c.Agent
	}
	return normalize.DefaultAgent(c.ResolvedKind(), c.Key)
}

// URL returns the full run endpoint URL.
func (c Config) URL() string {
	endpoint := c.RunEndpoint
	if endpoint == "" {
		endpoint = DefaultRunEndpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return strings.TrimRight(c.BaseURL, "/") + endpoint
}

// Info returns the redacted public description of the worker.
func (c Config) Info(defaultTimeout time.Duration) model.WorkerInfo {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	endpoint := c.RunEndpoint
	if endpoint == "" {
		endpoint = DefaultRunEndpoint
	}
	return model.WorkerInfo{
		Key:         c.Key,
		Agent:       c.AgentName(),
		BaseURL:     c.BaseURL,
		RunEndpoint: endpoint,
		TimeoutMS:   timeout.Milliseconds(),
		RequiresKey: c.RequiresKey,
		HasKey:      c.APIKey != "",
		Resolvable:  c.Resolvable(),
	}
}

// Target identifies the run a worker call belongs to.
type Target struct {
	SiteID    uuid.UUID
	RunID     uuid.UUID
	Domain    string
	RequestID string
}
