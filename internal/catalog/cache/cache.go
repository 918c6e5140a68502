package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/pkg/platform/sentinel"
)

// Store caches detail records by locator. Find returns sentinel.ErrNotFound on
// a miss or an expired entry.
type Store interface {
	Find(ctx context.Context, locator string) (models.DetailRecord, error)
	Save(ctx context.Context, locator string, record models.DetailRecord) error
}

// CachingFetcher serves detail records from a Store and falls through to the
// wrapped Fetcher on a miss. Only successful fetches are cached, and cache
// errors never turn into fetch failures.
type CachingFetcher struct {
	next   providers.Fetcher
	store  Store
	logger *slog.Logger
}

var _ providers.Fetcher = (*CachingFetcher)(nil)

// NewCachingFetcher wraps next with store. A nil logger discards cache errors.
func NewCachingFetcher(next providers.Fetcher, store Store, logger *slog.Logger) *CachingFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachingFetcher{next: next, store: store, logger: logger}
}

func (f *CachingFetcher) Fetch(ctx context.Context, locator string) (models.DetailRecord, error) {
	cached, err := f.store.Find(ctx, locator)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		f.logger.WarnContext(ctx, "detail cache read failed", "locator", locator, "error", err)
	}

	record, err := f.next.Fetch(ctx, locator)
	if err != nil {
		return models.DetailRecord{}, err
	}
	if err := f.store.Save(ctx, locator, record); err != nil {
		f.logger.WarnContext(ctx, "detail cache write failed", "locator", locator, "error", err)
	}
	return record, nil
}

type cachedRecord struct {
	record   models.DetailRecord
	storedAt time.Time
}
