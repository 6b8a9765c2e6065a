package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
)

// UpsertSite returns the site for domain, creating it if needed.
func (db *DB) UpsertSite(ctx context.Context, domain string, at time.Time) (model.Site, error) {
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO sites (id, domain, created_at) VALUES (?, ?, ?) ON CONFLICT (domain) DO NOTHING`,
		uuid.New(), domain, ts(at),
	); err != nil {
		return model.Site{}, fmt.Errorf("sqlite: upsert site: %w", err)
	}
	return db.GetSiteByDomain(ctx, domain)
}

// GetSiteByDomain returns the site for a normalized domain.
func (db *DB) GetSiteByDomain(ctx context.Context, domain string) (model.Site, error) {
	var (
		s       model.Site
		created string
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT id, domain, created_at FROM sites WHERE domain = ?`, domain,
	).Scan(&s.ID, &s.Domain, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Site{}, fmt.Errorf("sqlite: site %s: %w", domain, storage.ErrNotFound)
		}
		return model.Site{}, fmt.Errorf("sqlite: get site: %w", err)
	}
	if s.CreatedAt, err = parseTS(created); err != nil {
		return model.Site{}, err
	}
	return s, nil
}

const runColumns = `id, site_id, domain, mode, idempotency_key, forced, status,
	worker_statuses, scores, success_count, failed_count, suggestions_generated,
	insights_generated, tickets_generated, limited_visibility, unavailable_sources,
	report_digest, failure_reason, request_id, created_at, started_at, completed_at`

func scanRun(row interface{ Scan(...any) error }) (model.Run, error) {
	var (
		r                                  model.Run
		statuses, unavailable, created     string
		scores, reason, started, completed sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.SiteID, &r.Domain, &r.Mode, &r.IdempotencyKey, &r.Forced, &r.Status,
		&statuses, &scores, &r.SuccessCount, &r.FailedCount, &r.SuggestionsGenerated,
		&r.InsightsGenerated, &r.TicketsGenerated, &r.LimitedVisibility, &unavailable,
		&r.ReportDigest, &reason, &r.RequestID, &created, &started, &completed,
	); err != nil {
		return model.Run{}, err
	}
	if err := storage.DecodeJSON([]byte(statuses), &r.WorkerStatuses); err != nil {
		return model.Run{}, err
	}
	if scores.Valid {
		r.Scores = &model.Scores{}
		if err := storage.DecodeJSON([]byte(scores.String), r.Scores); err != nil {
			return model.Run{}, err
		}
	}
	if err := storage.DecodeJSON([]byte(unavailable), &r.UnavailableSources); err != nil {
		return model.Run{}, err
	}
	r.FailureReason = nullString(reason)

	var err error
	if r.CreatedAt, err = parseTS(created); err != nil {
		return model.Run{}, err
	}
	if r.StartedAt, err = parseNullTS(started); err != nil {
		return model.Run{}, err
	}
	if r.CompletedAt, err = parseNullTS(completed); err != nil {
		return model.Run{}, err
	}
	return r, nil
}

// CreateRun inserts a queued run. Non-forced runs are inserted only if no
// live run holds the same idempotency key; when one does, it is returned with
// created=false.
func (db *DB) CreateRun(ctx context.Context, run model.Run) (model.Run, bool, error) {
	insert := `INSERT INTO runs (id, site_id, domain, mode, idempotency_key, forced, status, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if !run.Forced {
		insert += ` ON CONFLICT DO NOTHING`
	}

	res, err := db.db.ExecContext(ctx, insert,
		run.ID, run.SiteID, run.Domain, run.Mode, run.IdempotencyKey, run.Forced,
		model.RunStatusQueued, run.RequestID, ts(run.CreatedAt),
	)
	if err != nil {
		return model.Run{}, false, fmt.Errorf("sqlite: create run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		created, err := db.GetRun(ctx, run.ID)
		return created, true, err
	}
	existing, err := db.FindReusableRun(ctx, run.IdempotencyKey)
	if err != nil {
		return model.Run{}, false, err
	}
	return existing, false, nil
}

// FindReusableRun returns the most recent run for key that has not failed.
func (db *DB) FindReusableRun(ctx context.Context, key string) (model.Run, error) {
	r, err := scanRun(db.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE idempotency_key = ? AND status <> 'failed'
		 ORDER BY created_at DESC LIMIT 1`, key,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, fmt.Errorf("sqlite: run for key %s: %w", key, storage.ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("sqlite: find reusable run: %w", err)
	}
	return r, nil
}

// GetRun returns a run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	r, err := scanRun(db.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, fmt.Errorf("sqlite: run %s: %w", id, storage.ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("sqlite: get run: %w", err)
	}
	return r, nil
}

// MarkRunRunning moves a queued run to running.
func (db *DB) MarkRunRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE runs SET status = 'running', started_at = ? WHERE id = ? AND status = 'queued'`,
		ts(at), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark run running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: mark run %s running: %w", id, storage.ErrStatusConflict)
	}
	return nil
}

// FailRun marks a non-terminal run failed.
func (db *DB) FailRun(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE runs SET status = 'failed', failure_reason = ?, completed_at = ?
		 WHERE id = ? AND status IN ('queued', 'running')`,
		reason, ts(at), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: fail run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: fail run %s: %w", id, storage.ErrStatusConflict)
	}
	return nil
}

// FinalizeRun writes the findings and the final run row in one transaction.
func (db *DB) FinalizeRun(ctx context.Context, run model.Run, suggestions []model.Suggestion, tickets []model.Ticket, insights []model.Insight) error {
	statuses, err := storage.EncodeJSON(run.WorkerStatuses)
	if err != nil {
		return err
	}
	var scores any
	if run.Scores != nil {
		b, err := storage.EncodeJSON(run.Scores)
		if err != nil {
			return err
		}
		scores = string(b)
	}
	unavailable, err := storage.EncodeJSON(run.UnavailableSources)
	if err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertFindings(ctx, tx, suggestions, tickets, insights); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET
			status = ?, worker_statuses = ?, scores = ?, success_count = ?, failed_count = ?,
			suggestions_generated = ?, insights_generated = ?, tickets_generated = ?,
			limited_visibility = ?, unavailable_sources = ?, report_digest = ?, completed_at = ?
		 WHERE id = ? AND status = 'running'`,
		run.Status, string(statuses), scores, run.SuccessCount, run.FailedCount,
		run.SuggestionsGenerated, run.InsightsGenerated, run.TicketsGenerated,
		run.LimitedVisibility, string(unavailable), run.ReportDigest, tsPtr(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: finalize run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: finalize run %s: %w", run.ID, storage.ErrStatusConflict)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit finalize: %w", err)
	}
	return nil
}
