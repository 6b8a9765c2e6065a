package model

import (
	"time"

	"github.com/google/uuid"
)

// DegradedThreshold is the number of consecutive failed runs after which an
// agent is considered degraded for a site.
const DegradedThreshold = 3

// Health is the advisory state of an agent for one site.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
)

// AgentHealthState is long-lived per (site, agent) state, independent of any
// single run. ConsecutiveFailures >= DegradedThreshold iff Health is degraded.
type AgentHealthState struct {
	SiteID              uuid.UUID  `json:"site_id"`
	Agent               string     `json:"agent"`
	Health              Health     `json:"health"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	DegradedAt          *time.Time `json:"degraded_at"`
	LastError           *string    `json:"last_error,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsDegraded reports whether the agent is currently degraded.
func (s AgentHealthState) IsDegraded() bool {
	return s.Health == HealthDegraded
}
