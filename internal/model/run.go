// Package model defines the core domain types for Kensa.
//
// Types correspond directly to database rows and API payloads. They use
// strong typing (UUIDs, time.Time, string enums) and stay free of storage or
// transport concerns so every layer can share them.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanMode selects how much of the report a run produces.
type ScanMode string

const (
	ModeLight ScanMode = "light"
	ModeFull  ScanMode = "full"
)

// ParseScanMode validates a mode string. Empty defaults to light.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case "":
		return ModeLight, nil
	case ModeLight, ModeFull:
		return ScanMode(s), nil
	default:
		return "", fmt.Errorf("mode must be %q or %q, got %q", ModeLight, ModeFull, s)
	}
}

// FinalStatus is the terminal success status for runs in this mode.
func (m ScanMode) FinalStatus() RunStatus {
	if m == ModeFull {
		return RunStatusCompleted
	}
	return RunStatusPreviewReady
}

// RunStatus represents the lifecycle state of a diagnostic run.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusRunning      RunStatus = "running"
	RunStatusPreviewReady RunStatus = "preview_ready"
	RunStatusCompleted    RunStatus = "completed"
	RunStatusFailed       RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusPreviewReady, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Reusable reports whether a run with this status satisfies a duplicate
// start request for the same idempotency key.
func (s RunStatus) Reusable() bool {
	return s != RunStatusFailed
}

// IdempotencyKey derives the coalescing key for a run request.
// domain must already be normalized.
func IdempotencyKey(domain string, mode ScanMode, at time.Time) string {
	return domain + "|" + string(mode) + "|" + at.UTC().Format(time.DateOnly)
}

// Run is one end-to-end diagnostic execution for a domain.
// Owned by the orchestrator; immutable once terminal.
type Run struct {
	ID                   uuid.UUID                      `json:"run_id"`
	SiteID               uuid.UUID                      `json:"site_id"`
	Domain               string                         `json:"domain"`
	Mode                 ScanMode                       `json:"mode"`
	IdempotencyKey       string                         `json:"idempotency_key"`
	Forced               bool                           `json:"forced"`
	Status               RunStatus                      `json:"status"`
	WorkerStatuses       map[string]WorkerStatusSummary `json:"worker_statuses"`
	Scores               *Scores                        `json:"scores,omitempty"`
	SuccessCount         int                            `json:"success_count"`
	FailedCount          int                            `json:"failed_count"`
	SuggestionsGenerated int                            `json:"suggestions_generated"`
	InsightsGenerated    int                            `json:"insights_generated"`
	TicketsGenerated     int                            `json:"tickets_generated"`
	LimitedVisibility    bool                           `json:"limited_visibility"`
	UnavailableSources   []string                       `json:"unavailable_sources"`
	ReportDigest         string                         `json:"report_digest,omitempty"`
	FailureReason        *string                        `json:"failure_reason,omitempty"`
	RequestID            string                         `json:"request_id,omitempty"`
	CreatedAt            time.Time                      `json:"created_at"`
	StartedAt            *time.Time                     `json:"started_at,omitempty"`
	CompletedAt          *time.Time                     `json:"completed_at,omitempty"`
}

// WorkerStatusSummary is the per-worker entry of the run status surface.
type WorkerStatusSummary struct {
	Status     CallStatus `json:"status"`
	DurationMS int64      `json:"durationMs"`
	Summary    string     `json:"summary"`
	Error      *string    `json:"error"`
}

// Scores holds category sub-scores and the weighted overall score, all in [0,100].
type Scores struct {
	Technical   float64  `json:"technical"`
	Performance float64  `json:"performance"`
	Content     float64  `json:"content"`
	SERP        float64  `json:"serp"`
	Authority   float64  `json:"authority"`
	Overall     float64  `json:"overall"`
	Defaulted   []string `json:"defaulted,omitempty"`
}

// RunEvent is an append-only audit entry attached to a run.
type RunEvent struct {
	ID        uuid.UUID      `json:"id"`
	RunID     uuid.UUID      `json:"run_id"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}
