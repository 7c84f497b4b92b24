package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

// Media holds catalog metadata, at most one row per request.
type Media struct {
	db *sqlx.DB
}

// Upsert creates or replaces the metadata of requestID.
func (m *Media) Upsert(ctx context.Context, requestID int64, md domain.Metadata) error {
	start := time.Now()
	ts := now()
	_, err := m.db.ExecContext(ctx, m.db.Rebind(
		`INSERT INTO media (media_request_id, title, summary, poster, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (media_request_id) DO UPDATE
		 SET title = excluded.title, summary = excluded.summary, poster = excluded.poster, updated_at = excluded.updated_at`),
		requestID, md.Title, md.Summary, md.Poster, ts, ts)
	if err != nil {
		return persistErr(ctx, "media.upsert", start, err)
	}
	return nil
}

// Get returns the metadata of requestID or domain.ErrNotFound.
func (m *Media) Get(ctx context.Context, requestID int64) (domain.Metadata, error) {
	start := time.Now()
	var md domain.Metadata
	err := m.db.QueryRowxContext(ctx, m.db.Rebind(
		`SELECT title, summary, poster FROM media WHERE media_request_id = ?`), requestID,
	).Scan(&md.Title, &md.Summary, &md.Poster)
	switch {
	case notFound(err):
		return domain.Metadata{}, domain.ErrNotFound
	case err != nil:
		return domain.Metadata{}, persistErr(ctx, "media.get", start, err)
	}
	return md, nil
}
