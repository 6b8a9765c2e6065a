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

// UpsertSite returns the site for domain, creating it if needed.
// domain must already be normalized.
func (db *DB) UpsertSite(ctx context.Context, domain string, at time.Time) (model.Site, error) {
	var s model.Site
	err := db.pool.QueryRow(ctx,
		`INSERT INTO sites (id, domain, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain
		 RETURNING id, domain, created_at`,
		uuid.New(), domain, at,
	).Scan(&s.ID, &s.Domain, &s.CreatedAt)
	if err != nil {
		return model.Site{}, fmt.Errorf("storage: upsert site: %w", err)
	}
	return s, nil
}

// GetSiteByDomain returns the site for a normalized domain.
func (db *DB) GetSiteByDomain(ctx context.Context, domain string) (model.Site, error) {
	var s model.Site
	err := db.pool.QueryRow(ctx,
		`SELECT id, domain, created_at FROM sites WHERE domain = $1`, domain,
	).Scan(&s.ID, &s.Domain, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Site{}, fmt.Errorf("storage: site %s: %w", domain, ErrNotFound)
		}
		return model.Site{}, fmt.Errorf("storage: get site: %w", err)
	}
	return s, nil
}
