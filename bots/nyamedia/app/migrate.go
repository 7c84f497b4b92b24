package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/bots/nyamedia/config"
	"github.com/nyamedia/nyabot/core/database"
	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/migrations"
)

// MigrationStatus reports the schema version of the configured database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// MigrateUp applies pending migrations to the database configured at path.
func MigrateUp(ctx context.Context, path string) (MigrationStatus, error) {
	return withDatabase(ctx, path, func(db *sqlx.DB, cfg database.Config) (MigrationStatus, error) {
		m := database.Migrations{FS: migrations.FS}
		if err := m.Up(ctx, db, cfg); err != nil {
			return MigrationStatus{}, err
		}
		v, dirty, err := m.Version(ctx, db, cfg)
		return MigrationStatus{Version: v, Dirty: dirty}, err
	})
}

// MigrateVersion reads the schema version without changing anything.
func MigrateVersion(ctx context.Context, path string) (MigrationStatus, error) {
	return withDatabase(ctx, path, func(db *sqlx.DB, cfg database.Config) (MigrationStatus, error) {
		v, dirty, err := database.Migrations{FS: migrations.FS}.Version(ctx, db, cfg)
		return MigrationStatus{Version: v, Dirty: dirty}, err
	})
}

func withDatabase(ctx context.Context, path string, fn func(*sqlx.DB, database.Config) (MigrationStatus, error)) (MigrationStatus, error) {
	cfg, err := config.LoadDatabase(path)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("app: load config: %w", err)
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return MigrationStatus{}, fmt.Errorf("app: logger init: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer db.Close()
	return fn(db, cfg.Database)
}
