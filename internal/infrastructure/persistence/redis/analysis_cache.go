package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS CACHE
// Stores AI compatibility analyses keyed by the unordered student pair,
// so (a, b) and (b, a) share an entry.
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisCache implements social.AnalysisCache.
type AnalysisCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ social.AnalysisCache = (*AnalysisCache)(nil)

// NewAnalysisCache creates an analysis cache. A non-positive ttl uses TTLAnalysis.
func NewAnalysisCache(cache *Cache, ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = TTLAnalysis
	}
	return &AnalysisCache{cache: cache, ttl: ttl}
}

// Get returns the cached analysis or nil on a miss.
func (c *AnalysisCache) Get(ctx context.Context, studentA, studentB string) (*social.AIAnalysis, error) {
	var analysis social.AIAnalysis
	err := c.cache.Get(ctx, AnalysisKey(shared.PairKey(studentA, studentB)), &analysis)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Set stores the analysis. Degraded analyses are ignored.
func (c *AnalysisCache) Set(ctx context.Context, studentA, studentB string, analysis social.AIAnalysis) error {
	if analysis.IsDegraded() {
		return nil
	}
	return c.cache.Set(ctx, AnalysisKey(shared.PairKey(studentA, studentB)), analysis, c.ttl)
}

// Invalidate drops the cached analysis for a pair.
func (c *AnalysisCache) Invalidate(ctx context.Context, studentA, studentB string) error {
	return c.cache.Delete(ctx, AnalysisKey(shared.PairKey(studentA, studentB)))
}
