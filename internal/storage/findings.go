package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kensa/internal/model"
)

// insertFindings queues every suggestion, ticket and insight on one batch.
// Position preserves generation order for readers.
func insertFindings(ctx context.Context, tx pgx.Tx, suggestions []model.Suggestion, tickets []model.Ticket, insights []model.Insight) error {
	if len(suggestions)+len(tickets)+len(insights) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, s := range suggestions {
		evidence, err := EncodeJSON(s.Evidence)
		if err != nil {
			return err
		}
		actions, err := EncodeJSON(s.Actions)
		if err != nil {
			return err
		}
		sources, err := EncodeJSON(s.SourceWorkers)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO suggestions (id, run_id, site_id, position, type, severity, category, title,
				description, target_url, evidence, actions, source_workers, fingerprint, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			s.ID, s.RunID, s.SiteID, i, s.Type, s.Severity, s.Category, s.Title,
			s.Description, s.TargetURL, evidence, actions, sources, s.Fingerprint, s.CreatedAt,
		)
	}
	for i, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets (id, run_id, suggestion_id, position, title, priority, owner, fingerprint, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.ID, t.RunID, t.SuggestionID, i, t.Title, t.Priority, t.Owner, t.Fingerprint, t.CreatedAt,
		)
	}
	for i, in := range insights {
		batch.Queue(
			`INSERT INTO insights (id, run_id, position, worker_key, metric, message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			in.ID, in.RunID, i, in.WorkerKey, in.Metric, in.Message, in.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: insert findings: %w", err)
	}
	return nil
}

// ListSuggestions returns a run's suggestions in ranked order.
func (db *DB) ListSuggestions(ctx context.Context, runID uuid.UUID) ([]model.Suggestion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, site_id, type, severity, category, title, description, target_url,
			evidence, actions, source_workers, fingerprint, created_at
		 FROM suggestions WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var (
			s                          model.Suggestion
			evidence, actions, sources []byte
		)
		if err := rows.Scan(
			&s.ID, &s.RunID, &s.SiteID, &s.Type, &s.Severity, &s.Category, &s.Title, &s.Description,
			&s.TargetURL, &evidence, &actions, &sources, &s.Fingerprint, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan suggestion: %w", err)
		}
		if err := DecodeJSON(evidence, &s.Evidence); err != nil {
			return nil, err
		}
		if err := DecodeJSON(actions, &s.Actions); err != nil {
			return nil, err
		}
		if err := DecodeJSON(sources, &s.SourceWorkers); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListTickets returns a run's tickets in ranked order.
func (db *DB) ListTickets(ctx context.Context, runID uuid.UUID) ([]model.Ticket, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, suggestion_id, title, priority, owner, fingerprint, created_at
		 FROM tickets WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tickets: %w", err)
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.RunID, &t.SuggestionID, &t.Title, &t.Priority, &t.Owner, &t.Fingerprint, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListInsights returns a run's insights in generation order.
func (db *DB) ListInsights(ctx context.Context, runID uuid.UUID) ([]model.Insight, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, worker_key, metric, message, created_at
		 FROM insights WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var in model.Insight
		if err := rows.Scan(&in.ID, &in.RunID, &in.WorkerKey, &in.Metric, &in.Message, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
