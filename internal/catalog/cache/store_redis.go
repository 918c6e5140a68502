package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"dex/internal/catalog/models"
	"dex/pkg/platform/sentinel"
)

var (
	redisLookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dex_detail_cache_lookup_duration_ms",
		Help:    "Latency of detail cache lookups in Redis in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	// Redis key prefix for cached detail records
	detailKeyPrefix = "dex:detail:"
)

// RedisCache is a Redis-backed detail cache shared by every instance of the
// service. Values are the JSON encoding of models.DetailRecord.
type RedisCache struct {
	client   *redis.Client
	cacheTTL time.Duration
}

// NewRedisCache constructs a Redis-backed detail cache.
func NewRedisCache(client *redis.Client, cacheTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, cacheTTL: cacheTTL}
}

// Save stores a record with the cache TTL using SET with expiry.
func (c *RedisCache) Save(ctx context.Context, locator string, record models.DetailRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode detail record: %w", err)
	}
	return c.client.Set(ctx, detailKeyPrefix+locator, payload, c.cacheTTL).Err()
}

// Find retrieves a record by locator. Redis expiry enforces the TTL, so a
// missing key covers both never-cached and expired entries.
func (c *RedisCache) Find(ctx context.Context, locator string) (models.DetailRecord, error) {
	start := time.Now()
	defer func() {
		redisLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	payload, err := c.client.Get(ctx, detailKeyPrefix+locator).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DetailRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.DetailRecord{}, fmt.Errorf("redis get: %w", err)
	}

	var record models.DetailRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return models.DetailRecord{}, fmt.Errorf("decode detail record: %w", err)
	}
	return record, nil
}
