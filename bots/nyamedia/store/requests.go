package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

const requestColumns = `id, source, media_id, request_user, status, created_at, updated_at`

const viewSelect = `SELECT r.id, r.source, r.media_id, r.request_user, r.status, r.created_at, r.updated_at,
	m.title, m.summary, m.poster
	FROM media_requests r `

// Requests is the media request ledger.
type Requests struct {
	db *sqlx.DB
}

// Get returns request id or domain.ErrNotFound.
func (r *Requests) Get(ctx context.Context, id int64) (domain.MediaRequest, error) {
	start := time.Now()
	var req domain.MediaRequest
	err := r.db.GetContext(ctx, &req, r.db.Rebind(`SELECT `+requestColumns+` FROM media_requests WHERE id = ?`), id)
	switch {
	case notFound(err):
		return domain.MediaRequest{}, domain.ErrNotFound
	case err != nil:
		return domain.MediaRequest{}, persistErr(ctx, "requests.get", start, err)
	}
	return req, nil
}

// FindBySource looks a request up by its catalog identity.
func (r *Requests) FindBySource(ctx context.Context, source, mediaID string) (domain.MediaRequest, error) {
	start := time.Now()
	var req domain.MediaRequest
	err := r.db.GetContext(ctx, &req, r.db.Rebind(
		`SELECT `+requestColumns+` FROM media_requests WHERE source = ? AND media_id = ?`), source, mediaID)
	switch {
	case notFound(err):
		return domain.MediaRequest{}, domain.ErrNotFound
	case err != nil:
		return domain.MediaRequest{}, persistErr(ctx, "requests.find", start, err)
	}
	return req, nil
}

// Insert stores a submitted request. The unique (source, media_id)
// constraint decides concurrent commits: the loser gets
// domain.ErrDuplicateRequest.
func (r *Requests) Insert(ctx context.Context, n domain.NewRequest) (domain.MediaRequest, error) {
	start := time.Now()
	ts := now()
	var req domain.MediaRequest
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(
		`INSERT INTO media_requests (source, media_id, request_user, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, media_id) DO NOTHING
		 RETURNING `+requestColumns),
		n.Source(), n.MediaID, n.RequestUser, domain.StatusSubmitted, ts, ts,
	).StructScan(&req)
	switch {
	case notFound(err):
		return domain.MediaRequest{}, domain.ErrDuplicateRequest
	case err != nil:
		return domain.MediaRequest{}, persistErr(ctx, "requests.insert", start, err)
	}
	return req, nil
}

// Transition moves request id from status from to status to in a single
// conditional update. When nothing changed the row is looked up to tell a
// missing request from one that was already adjudicated.
func (r *Requests) Transition(ctx context.Context, id int64, from, to domain.Status) (domain.MediaRequest, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE media_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		to, now(), id, from)
	if err != nil {
		return domain.MediaRequest{}, persistErr(ctx, "requests.transition", start, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.MediaRequest{}, persistErr(ctx, "requests.transition", start, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return domain.MediaRequest{}, err
		}
		return domain.MediaRequest{}, domain.ErrInvalidTransition
	}
	return r.Get(ctx, id)
}

// ListPending returns submitted requests with whatever metadata they have.
func (r *Requests) ListPending(ctx context.Context) ([]domain.RequestView, error) {
	return r.listViews(ctx, "requests.list_pending",
		viewSelect+`LEFT JOIN media m ON m.media_request_id = r.id WHERE r.status = ? ORDER BY r.created_at, r.id`,
		domain.StatusSubmitted)
}

// ListArchived returns archived requests that have metadata.
func (r *Requests) ListArchived(ctx context.Context) ([]domain.RequestView, error) {
	return r.listViews(ctx, "requests.list_archived",
		viewSelect+`JOIN media m ON m.media_request_id = r.id WHERE r.status = ? ORDER BY r.updated_at DESC, r.id DESC`,
		domain.StatusArchived)
}

// ListAll returns every request regardless of status.
func (r *Requests) ListAll(ctx context.Context) ([]domain.RequestView, error) {
	return r.listViews(ctx, "requests.list_all",
		viewSelect+`LEFT JOIN media m ON m.media_request_id = r.id ORDER BY r.id`)
}

// ListMissingMetadata returns requests that have no metadata row yet.
func (r *Requests) ListMissingMetadata(ctx context.Context) ([]domain.MediaRequest, error) {
	start := time.Now()
	var out []domain.MediaRequest
	err := r.db.SelectContext(ctx, &out,
		`SELECT r.id, r.source, r.media_id, r.request_user, r.status, r.created_at, r.updated_at
		 FROM media_requests r LEFT JOIN media m ON m.media_request_id = r.id
		 WHERE m.id IS NULL ORDER BY r.id`)
	if err != nil {
		return nil, persistErr(ctx, "requests.list_missing_metadata", start, err)
	}
	return out, nil
}

func (r *Requests) listViews(ctx context.Context, op, query string, args ...any) ([]domain.RequestView, error) {
	start := time.Now()
	out := []domain.RequestView{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, persistErr(ctx, op, start, err)
	}
	return out, nil
}
