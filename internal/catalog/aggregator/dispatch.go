package aggregator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
)

// dispatch runs one fetch per reference through a pool of a.concurrency
// workers. References still queued when ctx is cancelled are never fetched;
// that only happens once their run is superseded or the aggregator stops.
func (a *Aggregator) dispatch(ctx context.Context, runID uuid.UUID, refs []models.ResourceReference) {
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			a.fetchOne(ctx, runID, ref)
			// Per-item failures are recorded in the ledger, never returned.
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Aggregator) fetchOne(ctx context.Context, runID uuid.UUID, ref models.ResourceReference) {
	start := time.Now()
	record, err := a.fetcher.Fetch(ctx, ref.Locator)
	res := completion{
		runID:   runID,
		locator: ref.Locator,
		latency: time.Since(start),
	}
	switch {
	case err != nil:
		res.failure = providers.AsFetchFailure(ref.Locator, err)
	case record.Name == "":
		res.failure = providers.NewFetchFailure(providers.ErrorBadData, ref.Locator, "detail record has no name", nil)
	default:
		res.record = record
	}

	select {
	case a.results <- res:
	case <-a.done:
	}
}
