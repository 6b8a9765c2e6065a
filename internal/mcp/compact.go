package mcp

import (
	"github.com/ashita-ai/kensa/internal/model"
)

// compactRun returns a minimal representation of a run for MCP responses.
// Drops per-worker durations that agents don't act on; keeps each worker's
// status and error so failures stay explainable.
func compactRun(v model.RunStatusView) map[string]any {
	workers := make(map[string]any, len(v.WorkerStatuses))
	for key, w := range v.WorkerStatuses {
		entry := map[string]any{"status": w.Status}
		if w.Error != nil {
			entry["error"] = *w.Error
		}
		workers[key] = entry
	}

	m := map[string]any{
		"run_id":      v.RunID,
		"domain":      v.Domain,
		"mode":        v.Mode,
		"status":      v.Status,
		"workers":     workers,
		"succeeded":   v.SuccessCount,
		"failed":      v.FailedCount,
		"suggestions": v.SuggestionsGenerated,
		"tickets":     v.TicketsGenerated,
		"insights":    v.InsightsGenerated,
		"created_at":  v.CreatedAt,
	}
	if v.Scores != nil {
		m["scores"] = v.Scores
	}
	if len(v.UnavailableSources) > 0 {
		m["unavailable_sources"] = v.UnavailableSources
	}
	if v.LimitedVisibility {
		m["limited_visibility"] = true
	}
	if v.FailureReason != nil {
		m["failure_reason"] = *v.FailureReason
	}
	if v.CompletedAt != nil {
		m["completed_at"] = *v.CompletedAt
	}
	return m
}

// compactHealth flattens a site health view into agent states and the
// sources an agent should treat with suspicion.
func compactHealth(v model.SiteHealthView) map[string]any {
	agents := make([]map[string]any, 0, len(v.Agents))
	for _, a := range v.Agents {
		entry := map[string]any{
			"agent":                a.Agent,
			"health":               a.Health,
			"consecutive_failures": a.ConsecutiveFailures,
		}
		if a.LastError != nil {
			entry["last_error"] = *a.LastError
		}
		agents = append(agents, entry)
	}

	var stale []string
	sources := make([]map[string]any, 0, len(v.Sources))
	for _, s := range v.Sources {
		entry := map[string]any{"worker": s.WorkerKey, "stale": s.Stale}
		if s.LastSuccessAt != nil {
			entry["last_success_at"] = *s.LastSuccessAt
		}
		if s.Stale {
			stale = append(stale, s.WorkerKey)
		}
		sources = append(sources, entry)
	}

	m := map[string]any{
		"domain":     v.Site.Domain,
		"agents":     agents,
		"sources":    sources,
		"checked_at": v.CheckedAt,
	}
	if len(stale) > 0 {
		m["stale_sources"] = stale
	}
	return m
}
