package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds connection settings for the shared Redis pool.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds dialing and every read/write.
	Timeout time.Duration
}

// Redis is a Cache backed by a bounded go-redis connection pool.
type Redis struct {
	client *redis.Client
	log    *zap.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis creates the pool. No connection is made until first use, so an
// unreachable server only shows up as misses and warnings.
func NewRedis(cfg RedisConfig, log *zap.Logger) *Redis {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		PoolTimeout:  cfg.Timeout,
		MaxRetries:   1,
	})
	return &Redis{client: client, log: log.Named("cache")}
}

// Ping reports whether Redis answers.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// IncrWithTTL increments key and reads its remaining expiry in one
// pipelined round trip. A negative ttl means the key has no expiry yet.
func (r *Redis) IncrWithTTL(ctx context.Context, key string) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), ttl.Val(), nil
}

// Expire sets the expiry of key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}
