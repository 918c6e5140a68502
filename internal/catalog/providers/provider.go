package providers

import (
	"context"

	"dex/internal/catalog/models"
)

//go:generate mockgen -source=provider.go -destination=mocks/mocks.go -package=mocks

// Lister returns the lightweight references of one catalog category.
type Lister interface {
	// List fails with *ListingError on transport or decode failure.
	List(ctx context.Context, category string) ([]models.ResourceReference, error)
}

// Fetcher resolves a locator to its detail record.
type Fetcher interface {
	// Fetch returns exactly once per call; failures are *FetchFailure.
	Fetch(ctx context.Context, locator string) (models.DetailRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, locator string) (models.DetailRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context, locator string) (models.DetailRecord, error) {
	return f(ctx, locator)
}

// Source is a collaborator that can both list and fetch, like a REST client.
type Source interface {
	Lister
	Fetcher
}
