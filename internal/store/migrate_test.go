package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navtree/api/internal/store"
)

func TestApplyMigrationsConcurrently(t *testing.T) {
	ctx := context.Background()
	const databases = 4

	var wg sync.WaitGroup
	errs := make([]error, databases)
	for i := 0; i < databases; i++ {
		db, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "navtree.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ApplyMigrations(ctx, db, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "database %d", i)
	}
}

func TestApplyMigrationsLogsOnlyNewVersions(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "navtree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, hook := logrustest.NewNullLogger()
	require.NoError(t, store.ApplyMigrations(ctx, db, logger))
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "migration applied", hook.LastEntry().Message)
	assert.Equal(t, int64(1), hook.AllEntries()[0].Data["version"])

	hook.Reset()
	require.NoError(t, store.ApplyMigrations(ctx, db, logger))
	assert.Empty(t, hook.AllEntries(), "an up-to-date schema applies nothing")

	var tables int
	require.NoError(t, db.GetContext(ctx, &tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'menu_items'`))
	assert.Equal(t, 1, tables)
}
