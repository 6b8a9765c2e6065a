package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CallStatus is the terminal outcome of one worker call within a run.
type CallStatus string

const (
	CallSuccess CallStatus = "success"
	CallFailed  CallStatus = "failed"
	CallTimeout CallStatus = "timeout"
	CallSkipped CallStatus = "skipped"
)

// Counted reports whether the outcome reflects a runtime attempt.
// Skipped calls signal missing configuration and never count as failures.
func (s CallStatus) Counted() bool {
	return s != CallSkipped
}

// Rating classifies a measured value against fixed thresholds.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
	RatingPoor             Rating = "poor"
)

// Metric is one canonical measurement. Each key has exactly one unit and one
// owning agent.
type Metric struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Agent string  `json:"agent"`
}

// WorkerCallResult is one worker's outcome within a run. Created once per
// worker per run and never mutated afterwards.
type WorkerCallResult struct {
	ID          uuid.UUID          `json:"id"`
	RunID       uuid.UUID          `json:"run_id"`
	SiteID      uuid.UUID          `json:"site_id"`
	WorkerKey   string             `json:"worker_key"`
	Agent       string             `json:"agent"`
	Status      CallStatus         `json:"status"`
	DurationMS  int64              `json:"duration_ms"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	Ratings     map[string]Rating  `json:"ratings,omitempty"`
	Unmapped    []string           `json:"unmapped,omitempty"`
	Issues      []PageIssue        `json:"issues,omitempty"`
	Summary     string             `json:"summary"`
	ErrorCode   *string            `json:"error_code,omitempty"`
	ErrorDetail *string            `json:"error_detail,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Succeeded reports whether the worker returned a usable payload.
func (r WorkerCallResult) Succeeded() bool {
	return r.Status == CallSuccess
}

// StatusSummary projects the result onto the run status surface.
func (r WorkerCallResult) StatusSummary() WorkerStatusSummary {
	s := WorkerStatusSummary{
		Status:     r.Status,
		DurationMS: r.DurationMS,
		Summary:    r.Summary,
	}
	if r.ErrorCode != nil {
		msg := *r.ErrorCode
		if r.ErrorDetail != nil && *r.ErrorDetail != "" {
			msg += ": " + *r.ErrorDetail
		}
		s.Error = &msg
	}
	return s
}

// PageIssue is a raw finding reported by a worker for a specific page.
type PageIssue struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// SourceFreshness describes how recent the last successful result of a
// worker is for a site.
type SourceFreshness struct {
	WorkerKey     string     `json:"worker_key"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastRunID     *uuid.UUID `json:"last_run_id,omitempty"`
	Stale         bool       `json:"stale"`
}
