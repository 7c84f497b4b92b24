package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/nyamedia/nyabot/core/logger"
)

// Migrations locates the SQL files for one driver: fsys holds a directory
// per driver name ("postgres", "sqlite").
type Migrations struct {
	FS fs.FS
}

// newMigrator prepares a migrate instance for db. SQLite shares the open
// handle; postgres gets its own connection so closing the migrator never
// touches the application pool.
func (m Migrations) newMigrator(ctx context.Context, db *sqlx.DB, cfg Config) (*migrate.Migrate, []string, error) {
	dir := db.DriverName()
	src, err := iofs.New(m.FS, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open migrations %s: %w", dir, err)
	}
	files := listMigrationFiles(m.FS, dir)

	switch dir {
	case DriverSQLite:
		drv, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite migrate driver: %w", err)
		}
		mg, err := migrate.NewWithInstance("iofs", src, DriverSQLite, drv)
		return mg, files, err
	case DriverPostgres:
		dsn := cfg.DSN()
		if err := WaitForPostgres(ctx, dsn, 30*time.Second); err != nil {
			return nil, nil, fmt.Errorf("database not ready: %w", err)
		}
		mg, err := migrate.NewWithSourceInstance("iofs", src, dsn)
		return mg, files, err
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", dir)
	}
}

// Up applies all pending up migrations and logs a version summary.
func (m Migrations) Up(ctx context.Context, db *sqlx.DB, cfg Config) error {
	mg, files, err := m.newMigrator(ctx, db, cfg)
	if err != nil {
		logger.Error(ctx, "db.migrate", "init", slog.String("status", "fail"), logger.Err(err))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if db.DriverName() == DriverPostgres {
		defer mg.Close()
	}

	preview, truncated := logger.SummarizeStrings(files, 6)
	logger.Debug(ctx, "db.migrate", "resolve",
		slog.Int("count", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	fromVer, _, _ := mg.Version()
	start := time.Now()
	upErr := mg.Up()
	took := logger.RoundMS(time.Since(start))
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "apply",
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := mg.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("count", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// Version reports the current schema version and whether it is dirty.
func (m Migrations) Version(ctx context.Context, db *sqlx.DB, cfg Config) (uint, bool, error) {
	mg, _, err := m.newMigrator(ctx, db, cfg)
	if err != nil {
		return 0, false, err
	}
	if db.DriverName() == DriverPostgres {
		defer mg.Close()
	}
	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func listMigrationFiles(fsys fs.FS, dir string) []string {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, path.Base(e.Name()))
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
