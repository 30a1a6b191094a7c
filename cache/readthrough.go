package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ReadThrough serves list reads cache-aside.
//
// Concurrent misses on one key share a single load. Each key carries a
// generation that Invalidate bumps; a load that started before an
// invalidation does not write its result back.
type ReadThrough struct {
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewReadThrough wraps c. A nil c behaves as Nop; ttl <= 0 means DefaultTTL.
func NewReadThrough(c Cache, ttl time.Duration, log *zap.Logger) *ReadThrough {
	if c == nil {
		c = Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadThrough{
		cache: c,
		ttl:   ttl,
		log:   log.Named("readthrough"),
		gen:   make(map[string]uint64),
	}
}

func (rt *ReadThrough) generation(key string) uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.gen[key]
}

// setIfCurrent writes raw unless key was invalidated since gen was read.
// The check and the write happen under mu, and Invalidate bumps generations
// under mu before deleting, so a stale value written here is always deleted.
func (rt *ReadThrough) setIfCurrent(ctx context.Context, key string, gen uint64, raw []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.gen[key] == gen {
		rt.cache.Set(ctx, key, raw, rt.ttl)
	}
}

// Invalidate drops keys from the cache. Call it only after the write that
// changed the underlying data has committed.
func (rt *ReadThrough) Invalidate(ctx context.Context, keys ...string) {
	rt.mu.Lock()
	for _, k := range keys {
		rt.gen[k]++
		rt.group.Forget(k)
	}
	rt.mu.Unlock()
	rt.cache.Delete(ctx, keys...)
}

// Read returns the cached value for key, or calls load, caches its result
// for the configured TTL and returns it. Cache failures are never returned;
// load errors are.
func Read[T any](ctx context.Context, rt *ReadThrough, key string, load func(context.Context) (T, error)) (T, error) {
	if raw, ok := rt.cache.Get(ctx, key); ok {
		var v T
		err := json.Unmarshal(raw, &v)
		if err == nil {
			return v, nil
		}
		rt.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
	}

	res, err, _ := rt.group.Do(key, func() (any, error) {
		// The load is shared by every waiting caller, so it must not end
		// when the first caller goes away.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		gen := rt.generation(key)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			rt.log.Warn("cannot encode cache entry", zap.String("key", key), zap.Error(err))
			return v, nil
		}
		rt.setIfCurrent(loadCtx, key, gen, raw)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected shared result %T for %s", res, key)
	}
	return v, nil
}
