package catalog

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lorenzopantano/orbvision/internal/metrics"
)

// responseCache holds raw catalog responses in memory, keyed by request.
// Entries expire after ttl; the least recently used entry is dropped once
// maxEntries is reached. Cached slices are shared and must not be modified.
type responseCache struct {
	lru *expirable.LRU[string, []string]
}

func newResponseCache(maxEntries int, ttl time.Duration) *responseCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &responseCache{
		lru: expirable.NewLRU[string, []string](maxEntries, nil, ttl),
	}
}

func (c *responseCache) get(key string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	lines, ok := c.lru.Get(key)
	// Expired entries leave the cache lazily, so refresh the gauge on reads too.
	metrics.SetCatalogCacheEntries(c.lru.Len())
	if ok {
		metrics.IncCatalogCacheHits()
	} else {
		metrics.IncCatalogCacheMisses()
	}
	return lines, ok
}

func (c *responseCache) put(key string, lines []string) {
	if c == nil {
		return
	}
	c.lru.Add(key, lines)
	metrics.SetCatalogCacheEntries(c.lru.Len())
}

func (c *responseCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
