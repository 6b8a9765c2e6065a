package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
)

const healthColumns = `site_id, agent, health, consecutive_failures, degraded_at, last_error,
	last_success_at, last_failure_at, updated_at`

func scanHealth(row interface{ Scan(...any) error }) (model.AgentHealthState, error) {
	var (
		s                                           model.AgentHealthState
		degraded, lastErr, lastSuccess, lastFailure sql.NullString
		updated                                     string
	)
	if err := row.Scan(&s.SiteID, &s.Agent, &s.Health, &s.ConsecutiveFailures, &degraded,
		&lastErr, &lastSuccess, &lastFailure, &updated); err != nil {
		return model.AgentHealthState{}, err
	}
	var err error
	if s.DegradedAt, err = parseNullTS(degraded); err != nil {
		return model.AgentHealthState{}, err
	}
	if s.LastSuccessAt, err = parseNullTS(lastSuccess); err != nil {
		return model.AgentHealthState{}, err
	}
	if s.LastFailureAt, err = parseNullTS(lastFailure); err != nil {
		return model.AgentHealthState{}, err
	}
	if s.UpdatedAt, err = parseTS(updated); err != nil {
		return model.AgentHealthState{}, err
	}
	s.LastError = nullString(lastErr)
	return s, nil
}

// RecordAgentResult applies one run outcome to the (site, agent) health row
// in a single upsert. The resulting row matches health.Next.
func (db *DB) RecordAgentResult(ctx context.Context, siteID uuid.UUID, agent string, success bool, errMsg *string, at time.Time) (model.AgentHealthState, error) {
	s, err := scanHealth(db.db.QueryRowContext(ctx,
		`INSERT INTO agent_health (`+healthColumns+`)
		 VALUES (
			?1, ?2,
			CASE WHEN NOT ?3 AND 1 >= ?6 THEN 'degraded' ELSE 'healthy' END,
			CASE WHEN ?3 THEN 0 ELSE 1 END,
			CASE WHEN NOT ?3 AND 1 >= ?6 THEN ?5 END,
			CASE WHEN NOT ?3 THEN ?4 END,
			CASE WHEN ?3 THEN ?5 END,
			CASE WHEN NOT ?3 THEN ?5 END,
			?5
		 )
		 ON CONFLICT (site_id, agent) DO UPDATE SET
			consecutive_failures = CASE WHEN ?3 THEN 0 ELSE agent_health.consecutive_failures + 1 END,
			health = CASE WHEN NOT ?3 AND agent_health.consecutive_failures + 1 >= ?6 THEN 'degraded' ELSE 'healthy' END,
			degraded_at = CASE
				WHEN ?3 THEN NULL
				WHEN agent_health.consecutive_failures + 1 >= ?6 THEN COALESCE(agent_health.degraded_at, ?5)
				ELSE agent_health.degraded_at
			END,
			last_error = CASE WHEN ?3 THEN agent_health.last_error ELSE COALESCE(?4, agent_health.last_error) END,
			last_success_at = CASE WHEN ?3 THEN ?5 ELSE agent_health.last_success_at END,
			last_failure_at = CASE WHEN ?3 THEN agent_health.last_failure_at ELSE ?5 END,
			updated_at = ?5
		 RETURNING `+healthColumns,
		siteID, agent, success, errMsg, ts(at), model.DegradedThreshold,
	))
	if err != nil {
		return model.AgentHealthState{}, fmt.Errorf("sqlite: record agent result: %w", err)
	}
	return s, nil
}

// ListAgentHealth returns every agent health row for a site, by agent.
func (db *DB) ListAgentHealth(ctx context.Context, siteID uuid.UUID) ([]model.AgentHealthState, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+healthColumns+` FROM agent_health WHERE site_id = ? ORDER BY agent`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list agent health: %w", err)
	}
	defer rows.Close()

	var out []model.AgentHealthState
	for rows.Next() {
		s, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan agent health: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertRunEvent appends one audit entry for a run.
func (db *DB) InsertRunEvent(ctx context.Context, e model.RunEvent) error {
	data, err := storage.EncodeJSON(e.Data)
	if err != nil {
		return err
	}
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO run_events (id, run_id, event, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Event, string(data), ts(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("sqlite: insert run event: %w", err)
	}
	return nil
}

// ListRunEvents returns a run's audit trail, oldest first.
func (db *DB) ListRunEvents(ctx context.Context, runID uuid.UUID) ([]model.RunEvent, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, run_id, event, data, created_at FROM run_events WHERE run_id = ? ORDER BY created_at, rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list run events: %w", err)
	}
	defer rows.Close()

	var out []model.RunEvent
	for rows.Next() {
		var (
			e             model.RunEvent
			data, created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &data, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan run event: %w", err)
		}
		if err := storage.DecodeJSON([]byte(data), &e.Data); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
