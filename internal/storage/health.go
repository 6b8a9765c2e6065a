package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kensa/internal/model"
)

const healthColumns = `site_id, agent, health, consecutive_failures, degraded_at, last_error,
	last_success_at, last_failure_at, updated_at`

func scanHealth(row pgx.Row) (model.AgentHealthState, error) {
	var s model.AgentHealthState
	err := row.Scan(&s.SiteID, &s.Agent, &s.Health, &s.ConsecutiveFailures, &s.DegradedAt,
		&s.LastError, &s.LastSuccessAt, &s.LastFailureAt, &s.UpdatedAt)
	return s, err
}

// RecordAgentResult applies one run outcome to the (site, agent) health row
// in a single statement, so concurrent runs never lose an increment.
// A success resets the failure counter and clears degradation; a failure
// increments it and degrades the agent once it reaches the threshold.
// The resulting row matches health.Next.
func (db *DB) RecordAgentResult(ctx context.Context, siteID uuid.UUID, agent string, success bool, errMsg *string, at time.Time) (model.AgentHealthState, error) {
	s, err := scanHealth(db.pool.QueryRow(ctx,
		`INSERT INTO agent_health AS h (`+healthColumns+`)
		 VALUES (
			$1, $2,
			CASE WHEN NOT $3::boolean AND 1 >= $6 THEN 'degraded' ELSE 'healthy' END,
			CASE WHEN $3::boolean THEN 0 ELSE 1 END,
			CASE WHEN NOT $3::boolean AND 1 >= $6 THEN $5::timestamptz END,
			CASE WHEN NOT $3::boolean THEN $4::text END,
			CASE WHEN $3::boolean THEN $5::timestamptz END,
			CASE WHEN NOT $3::boolean THEN $5::timestamptz END,
			$5
		 )
		 ON CONFLICT (site_id, agent) DO UPDATE SET
			consecutive_failures = CASE WHEN $3::boolean THEN 0 ELSE h.consecutive_failures + 1 END,
			health = CASE WHEN NOT $3::boolean AND h.consecutive_failures + 1 >= $6 THEN 'degraded' ELSE 'healthy' END,
			degraded_at = CASE
				WHEN $3::boolean THEN NULL
				WHEN h.consecutive_failures + 1 >= $6 THEN COALESCE(h.degraded_at, $5::timestamptz)
				ELSE h.degraded_at
			END,
			last_error = CASE WHEN $3::boolean THEN h.last_error ELSE COALESCE($4::text, h.last_error) END,
			last_success_at = CASE WHEN $3::boolean THEN $5::timestamptz ELSE h.last_success_at END,
			last_failure_at = CASE WHEN $3::boolean THEN h.last_failure_at ELSE $5::timestamptz END,
			updated_at = $5
		 RETURNING `+healthColumns,
		siteID, agent, success, errMsg, at, model.DegradedThreshold,
	))
	if err != nil {
		return model.AgentHealthState{}, fmt.Errorf("storage: record agent result: %w", err)
	}
	return s, nil
}

// ListAgentHealth returns every agent health row for a site, by agent.
func (db *DB) ListAgentHealth(ctx context.Context, siteID uuid.UUID) ([]model.AgentHealthState, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+healthColumns+` FROM agent_health WHERE site_id = $1 ORDER BY agent`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent health: %w", err)
	}
	defer rows.Close()

	var out []model.AgentHealthState
	for rows.Next() {
		s, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan agent health: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
