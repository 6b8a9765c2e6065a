package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// StartRunRequest is the request body for POST /v1/runs.
type StartRunRequest struct {
	Domain string `json:"domain"`
	Mode   string `json:"mode,omitempty"`
	Force  bool   `json:"force,omitempty"`
	Async  bool   `json:"async,omitempty"`
}

// StartRunResponse is returned from POST /v1/runs.
type StartRunResponse struct {
	RunID        uuid.UUID     `json:"runId"`
	Status       RunStatus     `json:"status"`
	Deduplicated bool          `json:"deduplicated"`
	Run          RunStatusView `json:"run"`
}

// RunStatusView is the pollable run status surface.
type RunStatusView struct {
	RunID                uuid.UUID                      `json:"runId"`
	Domain               string                         `json:"domain"`
	Mode                 ScanMode                       `json:"mode"`
	Status               RunStatus                      `json:"status"`
	WorkerStatuses       map[string]WorkerStatusSummary `json:"workerStatuses"`
	SuccessCount         int                            `json:"successCount"`
	FailedCount          int                            `json:"failedCount"`
	SuggestionsGenerated int                            `json:"suggestionsGenerated"`
	InsightsGenerated    int                            `json:"insightsGenerated"`
	TicketsGenerated     int                            `json:"ticketsGenerated"`
	Scores               *Scores                        `json:"scores,omitempty"`
	LimitedVisibility    bool                           `json:"limitedVisibility"`
	UnavailableSources   []string                       `json:"unavailableSources"`
	ReportDigest         string                         `json:"reportDigest,omitempty"`
	FailureReason        *string                        `json:"failureReason,omitempty"`
	CreatedAt            time.Time                      `json:"createdAt"`
	CompletedAt          *time.Time                     `json:"completedAt,omitempty"`
}

// StatusView projects a run onto the status surface.
func (r Run) StatusView() RunStatusView {
	statuses := r.WorkerStatuses
	if statuses == nil {
		statuses = map[string]WorkerStatusSummary{}
	}
	unavailable := r.UnavailableSources
	if unavailable == nil {
		unavailable = []string{}
	}
	return RunStatusView{
		RunID:                r.ID,
		Domain:               r.Domain,
		Mode:                 r.Mode,
		Status:               r.Status,
		WorkerStatuses:       statuses,
		SuccessCount:         r.SuccessCount,
		FailedCount:          r.FailedCount,
		SuggestionsGenerated: r.SuggestionsGenerated,
		InsightsGenerated:    r.InsightsGenerated,
		TicketsGenerated:     r.TicketsGenerated,
		Scores:               r.Scores,
		LimitedVisibility:    r.LimitedVisibility,
		UnavailableSources:   unavailable,
		ReportDigest:         r.ReportDigest,
		FailureReason:        r.FailureReason,
		CreatedAt:            r.CreatedAt,
		CompletedAt:          r.CompletedAt,
	}
}

// RunReport is the full report for a finished run.
type RunReport struct {
	Run         RunStatusView      `json:"run"`
	Results     []WorkerCallResult `json:"results"`
	Suggestions []Suggestion       `json:"suggestions"`
	Tickets     []Ticket           `json:"tickets"`
	Insights    []Insight          `json:"insights"`
}

// SiteHealthView is the agent health and source freshness report for a site.
type SiteHealthView struct {
	Site      Site               `json:"site"`
	Agents    []AgentHealthState `json:"agents"`
	Sources   []SourceFreshness  `json:"sources"`
	CheckedAt time.Time          `json:"checked_at"`
}

// WorkerInfo describes one configured worker with secrets redacted.
type WorkerInfo struct {
	Key         string `json:"key"`
	Agent       string `json:"agent"`
	BaseURL     string `json:"base_url,omitempty"`
	RunEndpoint string `json:"run_endpoint"`
	TimeoutMS   int64  `json:"timeout_ms"`
	RequiresKey bool   `json:"requires_key"`
	HasKey      bool   `json:"has_key"`
	Resolvable  bool   `json:"resolvable"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Storage  string `json:"storage"`
	Workers  int    `json:"workers"`
	Uptime   int64  `json:"uptime_seconds"`
	Database string `json:"database,omitempty"`
}
