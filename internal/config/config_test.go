package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFiles(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "sqlite:./data/navtree.db", cfg.DatabaseURL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "menu_tree", cfg.Cache.Key)
	assert.Equal(t, "memory", cfg.CacheBackend())
	assert.Equal(t, "navtree:menu-refresh", cfg.NotifyChannel)
	assert.False(t, cfg.SearchEnabled())
	assert.False(t, cfg.SnapshotsEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("MENU_CACHE_TTL", "90s")
	t.Setenv("MENU_CACHE_ENABLED", "false")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := LoadFiles(nil)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.CacheBackend())
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Enabled)
	assert.True(t, cfg.SnapshotsEnabled())
	assert.True(t, cfg.S3.UseSSL)
	assert.Equal(t, "navtree-snapshots", cfg.S3.Bucket)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_ADDR=:9999\nMENU_CACHE_KEY=nav\n"), 0o600))
	t.Setenv("API_ADDR", "")
	os.Unsetenv("API_ADDR")
	t.Cleanup(func() {
		os.Unsetenv("API_ADDR")
		os.Unsetenv("MENU_CACHE_KEY")
	})

	n, err := LoadEnv([]string{path, filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cfg, err := LoadFiles(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "nav", cfg.Cache.Key)
}

func TestValidateRejectsRedisBackendWithoutURL(t *testing.T) {
	t.Setenv("MENU_CACHE_BACKEND", "redis")
	_, err := LoadFiles(nil)
	assert.Error(t, err)

	t.Setenv("MENU_CACHE_BACKEND", "memcached")
	_, err = LoadFiles(nil)
	assert.Error(t, err)
}
