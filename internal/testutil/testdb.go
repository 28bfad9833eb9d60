package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"navtree/api/internal/store"
)

// NewTestDB opens a throwaway SQLite database with all migrations applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	database, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "navtree.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	if err := store.ApplyMigrations(ctx, database, nil); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}

// NewTestStore wraps NewTestDB in a MenuStore.
func NewTestStore(t *testing.T) *store.MenuStore {
	t.Helper()
	return store.NewMenuStore(NewTestDB(t))
}
