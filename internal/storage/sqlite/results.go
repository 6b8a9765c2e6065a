package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
)

const resultColumns = `id, run_id, site_id, worker_key, agent, status, duration_ms, payload,
	metrics, ratings, unmapped, issues, summary, error_code, error_detail, created_at`

// InsertWorkerResult appends one worker outcome.
func (db *DB) InsertWorkerResult(ctx context.Context, r model.WorkerCallResult) error {
	var cols [4][]byte
	for i, v := range []any{r.Metrics, r.Ratings, r.Unmapped, r.Issues} {
		b, err := storage.EncodeJSON(v)
		if err != nil {
			return err
		}
		cols[i] = b
	}
	var payload any
	if len(r.Payload) > 0 {
		payload = string(r.Payload)
	}

	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO worker_call_results (`+resultColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.SiteID, r.WorkerKey, r.Agent, r.Status, r.DurationMS, payload,
		string(cols[0]), string(cols[1]), string(cols[2]), string(cols[3]),
		r.Summary, r.ErrorCode, r.ErrorDetail, ts(r.CreatedAt),
	); err != nil {
		return fmt.Errorf("sqlite: insert worker result: %w", err)
	}
	return nil
}

// ListWorkerResults returns every result recorded for a run, by worker key.
func (db *DB) ListWorkerResults(ctx context.Context, runID uuid.UUID) ([]model.WorkerCallResult, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM worker_call_results WHERE run_id = ? ORDER BY worker_key`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list worker results: %w", err)
	}
	return collectResults(rows)
}

// LatestSuccessfulResults returns the newest successful result per worker
// key for a site.
func (db *DB) LatestSuccessfulResults(ctx context.Context, siteID uuid.UUID) ([]model.WorkerCallResult, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY worker_key ORDER BY created_at DESC) AS rn
			FROM worker_call_results
			WHERE site_id = ? AND status = 'success'
		 ) WHERE rn = 1 ORDER BY worker_key`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest successful results: %w", err)
	}
	return collectResults(rows)
}

func collectResults(rows *sql.Rows) ([]model.WorkerCallResult, error) {
	defer rows.Close()
	var out []model.WorkerCallResult
	for rows.Next() {
		var (
			r                                           model.WorkerCallResult
			payload, code, detail                       sql.NullString
			metrics, ratings, unmapped, issues, created string
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.SiteID, &r.WorkerKey, &r.Agent, &r.Status, &r.DurationMS, &payload,
			&metrics, &ratings, &unmapped, &issues, &r.Summary, &code, &detail, &created,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan worker result: %w", err)
		}
		if payload.Valid {
			r.Payload = []byte(payload.String)
		}
		for _, c := range []struct {
			data string
			dst  any
		}{
			{metrics, &r.Metrics},
			{ratings, &r.Ratings},
			{unmapped, &r.Unmapped},
			{issues, &r.Issues},
		} {
			if err := storage.DecodeJSON([]byte(c.data), c.dst); err != nil {
				return nil, err
			}
		}
		r.ErrorCode = nullString(code)
		r.ErrorDetail = nullString(detail)

		var err error
		if r.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
