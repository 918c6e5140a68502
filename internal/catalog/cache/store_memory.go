package cache

import (
	"context"
	"sync"
	"time"

	"dex/internal/catalog/models"
	"dex/pkg/platform/sentinel"
)

// InMemoryCache provides an in-memory cache for detail records with TTL expiration.
type InMemoryCache struct {
	mu       sync.RWMutex
	records  map[string]cachedRecord
	cacheTTL time.Duration
	now      func() time.Time
}

// NewInMemoryCache creates a new in-memory cache with the specified TTL.
func NewInMemoryCache(cacheTTL time.Duration) *InMemoryCache {
	return &InMemoryCache{
		records:  make(map[string]cachedRecord),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Save stores a record keyed by locator.
func (c *InMemoryCache) Save(_ context.Context, locator string, record models.DetailRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[locator] = cachedRecord{record: record, storedAt: c.now()}
	return nil
}

// Find retrieves a cached record by locator.
// Returns sentinel.ErrNotFound if the record does not exist or has expired past the cache TTL.
func (c *InMemoryCache) Find(_ context.Context, locator string) (models.DetailRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.records[locator]; ok {
		if c.now().Sub(cached.storedAt) < c.cacheTTL {
			return cached.record, nil
		}
	}
	return models.DetailRecord{}, sentinel.ErrNotFound
}

// Purge drops expired entries and returns how many were removed.
func (c *InMemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for locator, cached := range c.records {
		if c.now().Sub(cached.storedAt) >= c.cacheTTL {
			delete(c.records, locator)
			removed++
		}
	}
	return removed
}
