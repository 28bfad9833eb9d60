package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"navtree/api/internal/cache"
	"navtree/api/internal/tree"
)

// Cache lookup results recorded in metrics.
const (
	cacheHit      = "hit"
	cacheMiss     = "miss"
	cacheError    = "error"
	cacheDisabled = "disabled"
)

// treeCache memoises assembled forests per tenant. It is read-through and
// write-invalidate: mutations evict, they never refresh in place. Backend
// failures degrade to recomputation.
//
// A reader whose load overlaps an invalidation does not store its result:
// the per-tenant generation moved, so the forest may predate the write.
// Invalidations from other instances only reach the shared backend, so a
// cross-instance overlap is bounded by the TTL.
type treeCache struct {
	backend cache.Cache
	enabled bool
	ttl     time.Duration
	key     string
	log     logrus.FieldLogger

	mu          sync.Mutex
	generations map[string]uint64
}

func (c *treeCache) generation(tenant string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[tenant]
}

func (c *treeCache) bump(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations == nil {
		c.generations = make(map[string]uint64)
	}
	c.generations[tenant]++
}

func (c *treeCache) keyFor(tenant string) string {
	if tenant == "" {
		return c.key
	}
	return c.key + ":" + tenant
}

func (c *treeCache) active() bool {
	return c.enabled && c.backend != nil
}

func (c *treeCache) get(ctx context.Context, tenant string, load func(context.Context) ([]tree.Node, error)) ([]tree.Node, error) {
	if !c.active() {
		recordCacheRequest(cacheDisabled)
		return load(ctx)
	}

	key := c.keyFor(tenant)
	raw, ok, err := c.backend.Get(ctx, key)
	switch {
	case err != nil:
		recordCacheRequest(cacheError)
		c.log.WithError(err).WithField("cache_key", key).Warn("tree cache read failed, recomputing")
	case ok:
		var forest []tree.Node
		if err := json.Unmarshal(raw, &forest); err == nil {
			recordCacheRequest(cacheHit)
			return forest, nil
		}
		recordCacheRequest(cacheError)
		c.log.WithField("cache_key", key).Warn("tree cache entry unreadable, recomputing")
	default:
		recordCacheRequest(cacheMiss)
	}

	generation := c.generation(tenant)
	forest, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.generation(tenant) != generation {
		recordCacheInvalidate("stale_load")
		return forest, nil
	}
	raw, err = json.Marshal(forest)
	if err != nil {
		return forest, nil
	}
	if err := c.backend.Put(ctx, key, raw, c.ttl); err != nil {
		c.log.WithError(err).WithField("cache_key", key).Warn("tree cache write failed")
		return forest, nil
	}
	// An invalidation that landed between the check above and the put.
	if c.generation(tenant) != generation {
		recordCacheInvalidate("stale_load")
		if err := c.backend.Evict(ctx, key); err != nil {
			c.log.WithError(err).WithField("cache_key", key).Warn("tree cache eviction failed")
		}
	}
	return forest, nil
}

// invalidate evicts the tenant's entry. It runs whenever a backend is present,
// even with caching disabled, so toggling the flag never serves stale trees.
func (c *treeCache) invalidate(ctx context.Context, tenant, reason string) {
	if c.backend == nil {
		return
	}
	c.bump(tenant)
	recordCacheInvalidate(reason)
	key := c.keyFor(tenant)
	if err := c.backend.Evict(ctx, key); err != nil {
		c.log.WithError(err).WithField("cache_key", key).Warn("tree cache eviction failed")
	}
}
