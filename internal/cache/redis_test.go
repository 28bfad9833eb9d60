package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ""), s
}

func TestNewRedisClientFailsWhenUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	if _, err := NewRedisClient("redis://" + addr); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedisPutAndGet(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Put(ctx, "menu_tree", []byte(`[{"id":1}]`), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, ok, err := c.Get(ctx, "menu_tree")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(value) != `[{"id":1}]` {
		t.Fatalf("unexpected cache value %q (hit=%v)", value, ok)
	}

	if !s.Exists("navtree:menu_tree") {
		t.Error("expected key to be stored with prefix")
	}
	if ttl := s.TTL("navtree:menu_tree"); ttl != time.Hour {
		t.Errorf("expected 1h ttl, got %v", ttl)
	}
}

func TestRedisGetMiss(t *testing.T) {
	c, _ := setupTestRedis(t)

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestRedisEntryExpires(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Put(ctx, "menu_tree", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "menu_tree")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected entry to expire")
	}
}

func TestRedisEvict(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Put(ctx, "menu_tree:acme", []byte("x"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Evict(ctx, "menu_tree:acme"); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if s.Exists("navtree:menu_tree:acme") {
		t.Error("expected key to be removed")
	}
	if err := c.Evict(ctx, "menu_tree:acme"); err != nil {
		t.Errorf("evicting a missing key should succeed: %v", err)
	}
}

func TestRedisErrorsSurface(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	c := NewRedisCache(client, "test:")
	s.Close()

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Error("expected error from unavailable redis")
	}
}
