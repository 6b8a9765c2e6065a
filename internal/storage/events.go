package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
)

// InsertRunEvent appends one audit entry for a run.
func (db *DB) InsertRunEvent(ctx context.Context, e model.RunEvent) error {
	data, err := EncodeJSON(e.Data)
	if err != nil {
		return err
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO run_events (id, run_id, event, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.RunID, e.Event, data, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: insert run event: %w", err)
	}
	return nil
}

// ListRunEvents returns a run's audit trail, oldest first.
func (db *DB) ListRunEvents(ctx context.Context, runID uuid.UUID) ([]model.RunEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, event, data, created_at FROM run_events
		 WHERE run_id = $1 ORDER BY created_at, id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list run events: %w", err)
	}
	defer rows.Close()

	var out []model.RunEvent
	for rows.Next() {
		var (
			e    model.RunEvent
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan run event: %w", err)
		}
		if err := DecodeJSON(data, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
