package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedSource wraps a DataSource with an in-process read-through cache.
// Marketplace data is slow-moving relative to workflow deadlines, so agents
// in concurrent workflows share query results instead of re-fetching them.
type CachedSource struct {
	inner DataSource
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// NewCachedSource wraps inner with a ristretto cache holding up to
// maxEntries queries for ttl each.
func NewCachedSource(inner DataSource, maxEntries int64, ttl time.Duration) (*CachedSource, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10, // ~10x expected items
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedSource{inner: inner, cache: cache, ttl: ttl}, nil
}

// Comparables returns cached listings when fresh, otherwise queries the
// underlying source and caches the result.
func (s *CachedSource) Comparables(ctx context.Context, query string) ([]Listing, error) {
	key := "comparables:" + query

	if data, ok := s.cache.Get(key); ok {
		var listings []Listing
		if err := json.Unmarshal(data, &listings); err == nil {
			return listings, nil
		}
	}

	listings, err := s.inner.Comparables(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(listings); err == nil {
		s.cache.SetWithTTL(key, data, 1, s.ttl)
	}

	return listings, nil
}

// CategoryStats returns cached stats when fresh, otherwise queries the
// underlying source and caches the result.
func (s *CachedSource) CategoryStats(ctx context.Context, category string) (*CategoryStats, error) {
	key := "category-stats:" + category

	if data, ok := s.cache.Get(key); ok {
		var stats CategoryStats
		if err := json.Unmarshal(data, &stats); err == nil {
			return &stats, nil
		}
	}

	stats, err := s.inner.CategoryStats(ctx, category)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(stats); err == nil {
		s.cache.SetWithTTL(key, data, 1, s.ttl)
	}

	return stats, nil
}

// Close releases cache resources.
func (s *CachedSource) Close() {
	s.cache.Close()
}
