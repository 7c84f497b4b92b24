// Package store persists registrations, media requests and their metadata
// with sqlx. Queries use ? placeholders and are rebound per driver so the
// same SQL runs on PostgreSQL and SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/core/logger"
)

// Store groups the repositories over one connection pool.
type Store struct {
	Registrations *Registrations
	Requests      *Requests
	Media         *Media
}

// New builds all repositories over db.
func New(db *sqlx.DB) *Store {
	return &Store{
		Registrations: &Registrations{db: db},
		Requests:      &Requests{db: db},
		Media:         &Media{db: db},
	}
}

func persistErr(ctx context.Context, op string, start time.Time, err error) error {
	logger.Error(ctx, "db", "db.query",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
		logger.Err(err),
	)
	return &domain.PersistenceError{Op: op, Err: err}
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
