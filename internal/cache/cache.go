// Package cache provides the key/value backends used to memoise assembled
// menu trees.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values with a time-to-live.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Evict(ctx context.Context, key string) error
}
