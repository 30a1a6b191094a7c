/*
Package cache provides the cache store adapter and the cache-aside read layer.

PURPOSE:
  The cache is an optional accelerator. Every adapter satisfies the same
  Cache interface, and none of its methods return errors: a failed get is
  a miss, a failed set or delete is logged and forgotten. Correctness
  depends only on the persistent store.

KEY TYPES:
  Cache:       get / set-with-ttl / delete
  Redis:       go-redis backed adapter (also serves the rate limiter)
  Nop:         always misses; used when caching is disabled
  ReadThrough: cache-aside reads with miss coalescing and invalidation

KEYS:
  accounts:all, categories:all, categories:tree, ratelimit:{client}

SEE ALSO:
  - readthrough.go: Read and Invalidate
  - ratelimit/: Fixed-window limiter built on Redis
*/
package cache

import (
	"context"
	"time"
)

// Cache keys. Invalidation matches on these exact names.
const (
	KeyAccounts     = "accounts:all"
	KeyCategories   = "categories:all"
	KeyCategoryTree = "categories:tree"

	rateLimitPrefix = "ratelimit:"
)

const (
	DefaultTTL = 900 * time.Second

	defaultPoolSize  = 20
	defaultOpTimeout = 2 * time.Second

	// loadTimeout bounds a shared miss load.
	loadTimeout = 30 * time.Second
)

// RateLimitKey is the counter key for a client identity.
func RateLimitKey(client string) string {
	return rateLimitPrefix + client
}

// Cache is a key/value store with expiry that never fails its caller.
type Cache interface {
	// Get returns the stored value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// Nop is a Cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (Nop) Set(context.Context, string, []byte, time.Duration) {}
func (Nop) Delete(context.Context, ...string)                  {}

var _ Cache = Nop{}
