package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
)

func insertFindings(ctx context.Context, tx *sql.Tx, suggestions []model.Suggestion, tickets []model.Ticket, insights []model.Insight) error {
	for i, s := range suggestions {
		evidence, err := storage.EncodeJSON(s.Evidence)
		if err != nil {
			return err
		}
		actions, err := storage.EncodeJSON(s.Actions)
		if err != nil {
			return err
		}
		sources, err := storage.EncodeJSON(s.SourceWorkers)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO suggestions (id, run_id, site_id, position, type, severity, category, title,
				description, target_url, evidence, actions, source_workers, fingerprint, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.RunID, s.SiteID, i, s.Type, s.Severity, s.Category, s.Title,
			s.Description, s.TargetURL, string(evidence), string(actions), string(sources), s.Fingerprint, ts(s.CreatedAt),
		); err != nil {
			return fmt.Errorf("sqlite: insert suggestion: %w", err)
		}
	}
	for i, t := range tickets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (id, run_id, suggestion_id, position, title, priority, owner, fingerprint, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.RunID, t.SuggestionID, i, t.Title, t.Priority, t.Owner, t.Fingerprint, ts(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("sqlite: insert ticket: %w", err)
		}
	}
	for i, in := range insights {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO insights (id, run_id, position, worker_key, metric, message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.RunID, i, in.WorkerKey, in.Metric, in.Message, ts(in.CreatedAt),
		); err != nil {
			return fmt.Errorf("sqlite: insert insight: %w", err)
		}
	}
	return nil
}

// ListSuggestions returns a run's suggestions in ranked order.
func (db *DB) ListSuggestions(ctx context.Context, runID uuid.UUID) ([]model.Suggestion, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, run_id, site_id, type, severity, category, title, description, target_url,
			evidence, actions, source_workers, fingerprint, created_at
		 FROM suggestions WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var (
			s                                   model.Suggestion
			evidence, actions, sources, created string
		)
		if err := rows.Scan(
			&s.ID, &s.RunID, &s.SiteID, &s.Type, &s.Severity, &s.Category, &s.Title, &s.Description,
			&s.TargetURL, &evidence, &actions, &sources, &s.Fingerprint, &created,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan suggestion: %w", err)
		}
		if err := storage.DecodeJSON([]byte(evidence), &s.Evidence); err != nil {
			return nil, err
		}
		if err := storage.DecodeJSON([]byte(actions), &s.Actions); err != nil {
			return nil, err
		}
		if err := storage.DecodeJSON([]byte(sources), &s.SourceWorkers); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListTickets returns a run's tickets in ranked order.
func (db *DB) ListTickets(ctx context.Context, runID uuid.UUID) ([]model.Ticket, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, run_id, suggestion_id, title, priority, owner, fingerprint, created_at
		 FROM tickets WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tickets: %w", err)
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var (
			t       model.Ticket
			created string
		)
		if err := rows.Scan(&t.ID, &t.RunID, &t.SuggestionID, &t.Title, &t.Priority, &t.Owner, &t.Fingerprint, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan ticket: %w", err)
		}
		if t.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListInsights returns a run's insights in generation order.
func (db *DB) ListInsights(ctx context.Context, runID uuid.UUID) ([]model.Insight, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, run_id, worker_key, metric, message, created_at
		 FROM insights WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list insights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var (
			in      model.Insight
			created string
		)
		if err := rows.Scan(&in.ID, &in.RunID, &in.WorkerKey, &in.Metric, &in.Message, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan insight: %w", err)
		}
		if in.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
