package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

// Registrations is the user directory.
type Registrations struct {
	db *sqlx.DB
}

// Get returns the registration of chatID or domain.ErrNotFound.
func (r *Registrations) Get(ctx context.Context, chatID int64) (domain.Registration, error) {
	start := time.Now()
	var reg domain.Registration
	err := r.db.GetContext(ctx, &reg, r.db.Rebind(
		`SELECT chat_id, username, account_id, is_admin, created_at FROM registrations WHERE chat_id = ?`), chatID)
	switch {
	case notFound(err):
		return domain.Registration{}, domain.ErrNotFound
	case err != nil:
		return domain.Registration{}, persistErr(ctx, "registrations.get", start, err)
	}
	return reg, nil
}

// Create stores reg. A second registration for the same chat fails with
// domain.ErrAlreadyRegistered.
func (r *Registrations) Create(ctx context.Context, reg domain.Registration) error {
	start := time.Now()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now()
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO registrations (chat_id, username, account_id, is_admin, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (chat_id) DO NOTHING`),
		reg.ChatID, reg.Username, reg.AccountID, reg.Admin, reg.CreatedAt)
	if err != nil {
		return persistErr(ctx, "registrations.create", start, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr(ctx, "registrations.create", start, err)
	}
	if n == 0 {
		return domain.ErrAlreadyRegistered
	}
	return nil
}

// Delete removes the registration of chatID.
func (r *Registrations) Delete(ctx context.Context, chatID int64) error {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM registrations WHERE chat_id = ?`), chatID)
	if err != nil {
		return persistErr(ctx, "registrations.delete", start, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr(ctx, "registrations.delete", start, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAdmin marks the given chats as administrators and returns how many
// registrations changed.
func (r *Registrations) SetAdmin(ctx context.Context, chatIDs []int64) (int64, error) {
	if len(chatIDs) == 0 {
		return 0, nil
	}
	start := time.Now()
	query, args, err := sqlx.In(`UPDATE registrations SET is_admin = ? WHERE chat_id IN (?) AND is_admin = ?`, true, chatIDs, false)
	if err != nil {
		return 0, persistErr(ctx, "registrations.set_admin", start, err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, persistErr(ctx, "registrations.set_admin", start, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr(ctx, "registrations.set_admin", start, err)
	}
	return n, nil
}
