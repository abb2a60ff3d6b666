package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Fixed-window counter per key: at most limit calls per window.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements query.RateLimiter on Redis counters.
type RateLimiter struct {
	cache  *Cache
	action string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter for one action. A non-positive limit
// disables limiting.
func NewRateLimiter(cache *Cache, action string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	return &RateLimiter{cache: cache, action: action, limit: limit, window: window}
}

// Allow counts the call and reports whether it fits in the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	n, err := l.cache.IncrWindow(ctx, RateLimitKey(key, l.action), l.window)
	if err != nil {
		return false, err
	}
	return n <= int64(l.limit), nil
}
