package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks a suggestion's urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the numeric rank of a severity (higher = more urgent).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AtLeast returns true if s is at least as urgent as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Category groups suggestions by the area of the site they concern.
type Category string

const (
	CategoryTechnical    Category = "technical"
	CategoryPerformance  Category = "performance"
	CategoryContent      Category = "content"
	CategorySERP         Category = "serp"
	CategoryAuthority    Category = "authority"
	CategoryCompetitive  Category = "competitive"
	CategoryAIVisibility Category = "ai_visibility"
)

// Suggestion is a generated recommendation. Within one generation pass no two
// suggestions share a Fingerprint.
type Suggestion struct {
	ID            uuid.UUID      `json:"id"`
	RunID         uuid.UUID      `json:"run_id"`
	SiteID        uuid.UUID      `json:"site_id"`
	Type          string         `json:"type"`
	Severity      Severity       `json:"severity"`
	Category      Category       `json:"category"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	TargetURL     string         `json:"target_url"`
	Evidence      map[string]any `json:"evidence"`
	Actions       []string       `json:"actions"`
	SourceWorkers []string       `json:"source_workers"`
	Fingerprint   string         `json:"fingerprint"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Priority is the ticket urgency derived from suggestion severity.
type Priority string

const (
	PriorityUrgent Priority = "Urgent"
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Owner is the team a ticket is routed to.
type Owner string

const (
	OwnerDev     Owner = "Dev"
	OwnerContent Owner = "Content"
	OwnerSEO     Owner = "SEO"
)

// Ticket is an actionable work item derived from a suggestion.
type Ticket struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	SuggestionID uuid.UUID `json:"suggestion_id"`
	Title        string    `json:"title"`
	Priority     Priority  `json:"priority"`
	Owner        Owner     `json:"owner"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
}

// Insight is a positive or neutral observation surfaced alongside suggestions.
type Insight struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	WorkerKey string    `json:"worker_key"`
	Metric    string    `json:"metric"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
