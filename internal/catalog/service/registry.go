package service

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"dex/pkg/platform/sentinel"
)

// Registry holds one independent Catalog per category.
type Registry struct {
	catalogs map[string]*Catalog
}

func NewRegistry(catalogs ...*Catalog) (*Registry, error) {
	r := &Registry{catalogs: make(map[string]*Catalog, len(catalogs))}
	for _, c := range catalogs {
		if _, dup := r.catalogs[c.Category()]; dup {
			return nil, fmt.Errorf("catalog %q registered twice: %w", c.Category(), sentinel.ErrInvalidState)
		}
		r.catalogs[c.Category()] = c
	}
	return r, nil
}

// Get returns the catalog for category, or sentinel.ErrNotFound.
func (r *Registry) Get(category string) (*Catalog, error) {
	c, ok := r.catalogs[category]
	if !ok {
		return nil, fmt.Errorf("catalog %q: %w", category, sentinel.ErrNotFound)
	}
	return c, nil
}

// Categories lists the registered categories in sorted order.
func (r *Registry) Categories() []string {
	names := make([]string, 0, len(r.catalogs))
	for name := range r.catalogs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run runs every catalog until ctx is cancelled or one of them fails.
func (r *Registry) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range r.catalogs {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	return g.Wait()
}
