package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kensa/internal/model"
)

const runColumns = `id, site_id, domain, mode, idempotency_key, forced, status,
	worker_statuses, scores, success_count, failed_count, suggestions_generated,
	insights_generated, tickets_generated, limited_visibility, unavailable_sources,
	report_digest, failure_reason, request_id, created_at, started_at, completed_at`

func scanRun(row pgx.Row) (model.Run, error) {
	var (
		r           model.Run
		statuses    []byte
		scores      []byte
		unavailable []byte
	)
	if err := row.Scan(
		&r.ID, &r.SiteID, &r.Domain, &r.Mode, &r.IdempotencyKey, &r.Forced, &r.Status,
		&statuses, &scores, &r.SuccessCount, &r.FailedCount, &r.SuggestionsGenerated,
		&r.InsightsGenerated, &r.TicketsGenerated, &r.LimitedVisibility, &unavailable,
		&r.ReportDigest, &r.FailureReason, &r.RequestID, &r.CreatedAt, &r.StartedAt, &r.CompletedAt,
	); err != nil {
		return model.Run{}, err
	}
	if err := DecodeJSON(statuses, &r.WorkerStatuses); err != nil {
		return model.Run{}, err
	}
	if len(scores) > 0 && string(scores) != "null" {
		r.Scores = &model.Scores{}
		if err := DecodeJSON(scores, r.Scores); err != nil {
			return model.Run{}, err
		}
	}
	if err := DecodeJSON(unavailable, &r.UnavailableSources); err != nil {
		return model.Run{}, err
	}
	return r, nil
}

// CreateRun inserts a queued run. Non-forced runs are inserted only if no
// live run holds the same idempotency key; when one does, it is returned with
// created=false. Forced runs always insert.
func (db *DB) CreateRun(ctx context.Context, run model.Run) (model.Run, bool, error) {
	insert := `INSERT INTO runs (id, site_id, domain, mode, idempotency_key, forced, status, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if !run.Forced {
		insert += ` ON CONFLICT (idempotency_key) WHERE forced = false AND status <> 'failed' DO NOTHING`
	}

	// A conflicting run can fail between our insert and the re-read; the
	// second attempt then inserts.
	for range 2 {
		tag, err := db.pool.Exec(ctx, insert,
			run.ID, run.SiteID, run.Domain, run.Mode, run.IdempotencyKey, run.Forced,
			model.RunStatusQueued, run.RequestID, run.CreatedAt,
		)
		if err != nil {
			return model.Run{}, false, fmt.Errorf("storage: create run: %w", err)
		}
		if tag.RowsAffected() == 1 {
			created, err := db.GetRun(ctx, run.ID)
			return created, true, err
		}
		existing, err := db.FindReusableRun(ctx, run.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return model.Run{}, false, err
		}
	}
	return model.Run{}, false, fmt.Errorf("storage: create run: idempotency key %s contended", run.IdempotencyKey)
}

// FindReusableRun returns the most recent run for key that has not failed.
func (db *DB) FindReusableRun(ctx context.Context, key string) (model.Run, error) {
	r, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE idempotency_key = $1 AND status <> 'failed'
		 ORDER BY created_at DESC LIMIT 1`, key,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run for key %s: %w", key, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: find reusable run: %w", err)
	}
	return r, nil
}

// GetRun returns a run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	r, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return r, nil
}

// MarkRunRunning moves a queued run to running.
func (db *DB) MarkRunRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = 'running', started_at = $2 WHERE id = $1 AND status = 'queued'`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("storage: mark run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: mark run %s running: %w", id, ErrStatusConflict)
	}
	return nil
}

// FailRun marks a non-terminal run failed.
func (db *DB) FailRun(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = 'failed', failure_reason = $2, completed_at = $3
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		id, reason, at,
	)
	if err != nil {
		return fmt.Errorf("storage: fail run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: fail run %s: %w", id, ErrStatusConflict)
	}
	return nil
}

// FinalizeRun writes the findings and the final run row in one transaction.
// The run must still be running; its Status field carries the terminal
// status to store.
func (db *DB) FinalizeRun(ctx context.Context, run model.Run, suggestions []model.Suggestion, tickets []model.Ticket, insights []model.Insight) error {
	statuses, err := EncodeJSON(run.WorkerStatuses)
	if err != nil {
		return err
	}
	var scores []byte
	if run.Scores != nil {
		if scores, err = EncodeJSON(run.Scores); err != nil {
			return err
		}
	}
	unavailable, err := EncodeJSON(run.UnavailableSources)
	if err != nil {
		return err
	}

	return finalizeRetry.do(ctx, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin finalize: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := insertFindings(ctx, tx, suggestions, tickets, insights); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE runs SET
				status = $2, worker_statuses = $3, scores = $4, success_count = $5,
				failed_count = $6, suggestions_generated = $7, insights_generated = $8,
				tickets_generated = $9, limited_visibility = $10, unavailable_sources = $11,
				report_digest = $12, completed_at = $13
			 WHERE id = $1 AND status = 'running'`,
			run.ID, run.Status, statuses, scores, run.SuccessCount,
			run.FailedCount, run.SuggestionsGenerated, run.InsightsGenerated,
			run.TicketsGenerated, run.LimitedVisibility, unavailable,
			run.ReportDigest, run.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("storage: finalize run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("storage: finalize run %s: %w", run.ID, ErrStatusConflict)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit finalize: %w", err)
		}
		return nil
	})
}
