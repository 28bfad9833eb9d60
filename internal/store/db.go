package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Open connects to PostgreSQL for postgres:// URLs and to an embedded SQLite
// database for sqlite:<path> URLs.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	driver, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// Transactions begin IMMEDIATE (see dsn), so writers are serialised by
		// the database lock; a small pool is enough.
		db.SetMaxOpenConns(4)
	default:
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	value := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(value, "postgres://"), strings.HasPrefix(value, "postgresql://"):
		return DriverPostgres, value, nil
	case strings.HasPrefix(value, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(value, "sqlite:"), "//")
		if path == "" {
			return "", "", fmt.Errorf("sqlite database url needs a path: %q", databaseURL)
		}
		return DriverSQLite, "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate", nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}
