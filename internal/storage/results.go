package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kensa/internal/model"
)

const resultColumns = `id, run_id, site_id, worker_key, agent, status, duration_ms, payload,
	metrics, ratings, unmapped, issues, summary, error_code, error_detail, created_at`

// InsertWorkerResult appends one worker outcome. A run holds at most one
// result per worker key.
func (db *DB) InsertWorkerResult(ctx context.Context, r model.WorkerCallResult) error {
	metrics, err := EncodeJSON(r.Metrics)
	if err != nil {
		return err
	}
	ratings, err := EncodeJSON(r.Ratings)
	if err != nil {
		return err
	}
	unmapped, err := EncodeJSON(r.Unmapped)
	if err != nil {
		return err
	}
	issues, err := EncodeJSON(r.Issues)
	if err != nil {
		return err
	}
	var payload []byte
	if len(r.Payload) > 0 {
		payload = r.Payload
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO worker_call_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.RunID, r.SiteID, r.WorkerKey, r.Agent, r.Status, r.DurationMS, payload,
		metrics, ratings, unmapped, issues, r.Summary, r.ErrorCode, r.ErrorDetail, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert worker result: %w", err)
	}
	return nil
}

// ListWorkerResults returns every result recorded for a run, by worker key.
func (db *DB) ListWorkerResults(ctx context.Context, runID uuid.UUID) ([]model.WorkerCallResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM worker_call_results WHERE run_id = $1 ORDER BY worker_key`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list worker results: %w", err)
	}
	return collectResults(rows)
}

// LatestSuccessfulResults returns the newest successful result per worker
// key for a site.
func (db *DB) LatestSuccessfulResults(ctx context.Context, siteID uuid.UUID) ([]model.WorkerCallResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (worker_key) `+resultColumns+`
		 FROM worker_call_results
		 WHERE site_id = $1 AND status = 'success'
		 ORDER BY worker_key, created_at DESC`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: latest successful results: %w", err)
	}
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]model.WorkerCallResult, error) {
	defer rows.Close()
	var out []model.WorkerCallResult
	for rows.Next() {
		var (
			r                                           model.WorkerCallResult
			payload, metrics, ratings, unmapped, issues []byte
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.SiteID, &r.WorkerKey, &r.Agent, &r.Status, &r.DurationMS, &payload,
			&metrics, &ratings, &unmapped, &issues, &r.Summary, &r.ErrorCode, &r.ErrorDetail, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan worker result: %w", err)
		}
		if len(payload) > 0 {
			r.Payload = payload
		}
		if err := DecodeJSON(metrics, &r.Metrics); err != nil {
			return nil, err
		}
		if err := DecodeJSON(ratings, &r.Ratings); err != nil {
			return nil, err
		}
		if err := DecodeJSON(unmapped, &r.Unmapped); err != nil {
			return nil, err
		}
		if err := DecodeJSON(issues, &r.Issues); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
