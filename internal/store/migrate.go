package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// migrationsDir returns the embedded directory and goose dialect for a driver.
func migrationsDir(driver string) (dir string, dialect goose.Dialect, err error) {
	switch driver {
	case DriverPostgres:
		return "migrations/postgres", goose.DialectPostgres, nil
	case DriverSQLite:
		return "migrations/sqlite", goose.DialectSQLite3, nil
	default:
		return "", "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// ApplyMigrations brings the schema up to date using the embedded goose
// migrations. It keeps no package state, so databases can be migrated
// concurrently. A nil log discards the per-migration lines.
func ApplyMigrations(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger) error {
	dir, dialect, err := migrationsDir(db.DriverName())
	if err != nil {
		return err
	}
	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if log != nil {
		for _, result := range results {
			log.WithFields(logrus.Fields{
				"version":     result.Source.Version,
				"file":        result.Source.Path,
				"duration_ms": result.Duration.Milliseconds(),
			}).Info("migration applied")
		}
	}
	return nil
}
