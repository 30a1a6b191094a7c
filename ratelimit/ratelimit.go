// Package ratelimit implements a fixed-window request limiter keyed by
// client identity and backed by the shared Redis cache.
//
// A fixed window admits up to twice the limit across a window boundary.
// When the counter store fails the limiter fails open.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/money-tracker/cache"
)

// Counter is the store the limiter counts in. IncrWithTTL must increment and
// read the remaining expiry in a single round trip.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string) (int64, time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time left in the current window, zero if unknown.
	RetryAfter time.Duration
}

// Config holds limiter settings.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig returns 100 requests per minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 100,
		Window:      time.Minute,
	}
}

// Limiter checks clients against a fixed window.
type Limiter struct {
	counter Counter
	cfg     Config
	log     *zap.Logger
}

func NewLimiter(counter Counter, cfg Config, log *zap.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Limiter{counter: counter, cfg: cfg, log: log.Named("ratelimit")}
}

// Allow checks client against the limiter's configured limit and window.
func (l *Limiter) Allow(ctx context.Context, client string) Result {
	return l.Check(ctx, client, l.cfg.MaxRequests, l.cfg.Window)
}

// Check counts one request for client and reports whether it fits in the
// current window of maxRequests per window.
func (l *Limiter) Check(ctx context.Context, client string, maxRequests int, window time.Duration) Result {
	key := cache.RateLimitKey(client)
	open := Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests}

	count, ttl, err := l.counter.IncrWithTTL(ctx, key)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.String("client", client), zap.Error(err))
		return open
	}
	if ttl < 0 {
		// First hit of a fresh window.
		if err := l.counter.Expire(ctx, key, window); err != nil {
			l.log.Warn("rate limit expire failed", zap.String("client", client), zap.Error(err))
		}
		ttl = window
	}

	remaining := maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= int64(maxRequests),
		Limit:      maxRequests,
		Remaining:  remaining,
		RetryAfter: ttl,
	}
}
