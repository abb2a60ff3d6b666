package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-buddy/internal/domain/social"
)

// newTestCache starts a miniredis and wraps a client pointed at it.
func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheFromClient(client), mr
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, cache.Set(ctx, "k", payload{Name: "alice"}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	var got payload
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, "alice", got.Name)

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)

	assert.ErrorIs(t, cache.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestCache_GetCorruptedValue(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, mr.Set("broken", "{not json"))

	var v map[string]any
	assert.ErrorIs(t, cache.Get(ctx, "broken", &v), ErrCacheSerialization)
}

func TestNewCache_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.MaxRetries = 0
	cfg.DialTimeout = 200 * time.Millisecond

	_, err = NewCache(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestAnalysisCache_PairIsUnordered(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	ac := NewAnalysisCache(cache, 0)

	miss, err := ac.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, miss)

	analysis := social.AIAnalysis{Score: 82, Reasons: []string{"same goals"}, Concerns: []string{}}
	require.NoError(t, ac.Set(ctx, "bob", "alice", analysis))

	got, err := ac.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, analysis, *got)

	assert.True(t, mr.Exists("analysis:alice:bob"))
	assert.Equal(t, TTLAnalysis, mr.TTL("analysis:alice:bob"))

	require.NoError(t, ac.Invalidate(ctx, "alice", "bob"))
	got, err = ac.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalysisCache_SkipsDegraded(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	ac := NewAnalysisCache(cache, time.Hour)

	require.NoError(t, ac.Set(ctx, "alice", "bob", social.UnavailableAIAnalysis()))
	assert.False(t, mr.Exists("analysis:alice:bob"))
}

func TestAnalysisCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	ac := NewAnalysisCache(cache, time.Hour)

	require.NoError(t, ac.Set(ctx, "alice", "bob", social.AIAnalysis{Score: 70}))
	mr.FastForward(time.Hour + time.Second)

	got, err := ac.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	limiter := NewRateLimiter(cache, "ai_analysis", 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// other students have their own window
	ok, err = limiter.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("ratelimit:alice:ai_analysis"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_IncrWindowKeepsFixedExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	n, err := cache.IncrWindow(ctx, "ratelimit:alice:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:alice:x"))

	mr.FastForward(40 * time.Second)
	n, err = cache.IncrWindow(ctx, "ratelimit:alice:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 20*time.Second, mr.TTL("ratelimit:alice:x"))

	// a counter left without expiry gets one on the next increment
	require.NoError(t, mr.Set("ratelimit:bob:x", "5"))
	n, err = cache.IncrWindow(ctx, "ratelimit:bob:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:bob:x"))

	_, err = cache.IncrWindow(ctx, "", time.Minute)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = cache.IncrWindow(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
}

func TestRateLimiter_DisabledAndUnavailable(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	unlimited := NewRateLimiter(cache, "ai_analysis", 0, time.Minute)
	for i := 0; i < 5; i++ {
		ok, err := unlimited.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	limited := NewRateLimiter(cache, "ai_analysis", 1, time.Minute)
	mr.SetError("ERR simulated outage")
	ok, err := limited.Allow(ctx, "alice")
	assert.Error(t, err)
	assert.False(t, ok)
}
