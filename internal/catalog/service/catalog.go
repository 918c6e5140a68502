package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dex/internal/catalog/aggregator"
	"dex/internal/catalog/metrics"
	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/internal/catalog/query"
	"dex/internal/catalog/view"
)

// Catalog is the consumer surface for one category: it lists references,
// aggregates their details and keeps a filtered view current.
type Catalog struct {
	category string
	lister   providers.Lister
	agg      *aggregator.Aggregator
	state    *query.State
	logger   *slog.Logger
	metrics  *metrics.Metrics

	aggOpts []aggregator.Option

	subsMu      sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64
	closed  bool

	stateOpts []query.Option
}

type subscriber struct {
	ch      chan query.Result
	lastSeq uint64
}

type Option func(c *Catalog)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
		c.aggOpts = append(c.aggOpts, aggregator.WithLogger(logger))
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) {
		c.metrics = m
		c.aggOpts = append(c.aggOpts, aggregator.WithMetrics(m))
	}
}

// WithConcurrency bounds the number of detail fetches in flight.
func WithConcurrency(n int) Option {
	return func(c *Catalog) {
		c.aggOpts = append(c.aggOpts, aggregator.WithConcurrency(n))
	}
}

// WithIDSearch lets queries match a record's ID as well as its name.
func WithIDSearch() Option {
	return func(c *Catalog) {
		c.stateOpts = append(c.stateOpts, query.WithMatcher(view.ByNameOrID))
	}
}

func WithAggregatorOptions(opts ...aggregator.Option) Option {
	return func(c *Catalog) {
		c.aggOpts = append(c.aggOpts, opts...)
	}
}

// New constructs a Catalog for category. Run must be started before runs
// make progress.
func New(category string, lister providers.Lister, fetcher providers.Fetcher, opts ...Option) *Catalog {
	c := &Catalog{
		category: category,
		lister:   lister,
		logger:   slog.New(slog.DiscardHandler),
		subs:     make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.agg = aggregator.New(fetcher, append([]aggregator.Option{aggregator.WithCatalog(category)}, c.aggOpts...)...)
	c.state = query.New(c.agg, c.stateOpts...)
	c.state.OnChange(c.broadcast)
	return c
}

func (c *Catalog) Category() string {
	return c.category
}

// Run drives the aggregator and keeps the filtered view in step with every
// published snapshot. It returns nil once ctx is cancelled.
func (c *Catalog) Run(ctx context.Context) error {
	snaps, cancel := c.agg.Subscribe()
	defer cancel()
	defer c.closeSubscribers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.agg.Run(gctx)
	})
	g.Go(func() error {
		for snap := range snaps {
			c.state.Refresh(snap)
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("catalog %s: %w", c.category, err)
	}
	return nil
}

// Refresh lists the category and starts a run over the listing. A listing
// failure is returned as a *providers.ListingError; no run is started and the
// previous collection and view stay as they were.
func (c *Catalog) Refresh(ctx context.Context) (uuid.UUID, error) {
	refs, err := c.lister.List(ctx, c.category)
	if err != nil {
		lerr := asListingError(c.category, err)
		if c.metrics != nil {
			c.metrics.IncrementListingFailures(c.category, string(lerr.Kind))
		}
		c.logger.ErrorContext(ctx, "listing failed",
			"catalog", c.category,
			"kind", lerr.Kind,
			"error", err,
		)
		return uuid.Nil, lerr
	}
	return c.StartRun(ctx, refs)
}

// StartRun begins aggregation over refs, superseding any active run.
func (c *Catalog) StartRun(ctx context.Context, refs []models.ResourceReference) (uuid.UUID, error) {
	runID, err := c.agg.StartRun(ctx, refs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

// OnQueryChanged sets the filter text and returns the recomputed view.
func (c *Catalog) OnQueryChanged(text string) query.Result {
	return c.state.SetQuery(text)
}

// CurrentFilteredView returns the view for the current query over the latest
// collection.
func (c *Catalog) CurrentFilteredView() []models.DetailRecord {
	return c.Current().Items
}

// Current returns the latest view together with its query and snapshot.
func (c *Catalog) Current() query.Result {
	res := c.state.Current()
	if latest := c.agg.Snapshot(); latest.Version > res.Snapshot.Version {
		res, _ = c.state.Refresh(latest)
	}
	return res
}

func (c *Catalog) RunStatus() models.RunStatus {
	return c.agg.Status()
}

func (c *Catalog) Ledger() models.Ledger {
	return c.agg.Ledger()
}

// Snapshot returns the aggregator's latest published state.
func (c *Catalog) Snapshot() models.Snapshot {
	return c.agg.Snapshot()
}

// Subscribe returns a channel holding the most recent view not yet received.
// It is primed with the current view and closed by the cancel func or when
// Run returns.
func (c *Catalog) Subscribe() (<-chan query.Result, func()) {
	ch := make(chan query.Result, 1)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	primed := c.state.Current()
	c.subs[id] = &subscriber{ch: ch, lastSeq: primed.Seq}
	ch <- primed

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub.ch)
			}
		})
	}
}

// broadcast replaces each subscriber's pending view with res. A result older
// than the one a subscriber already holds is dropped for that subscriber.
func (c *Catalog) broadcast(res query.Result) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		if res.Seq <= sub.lastSeq {
			continue
		}
		sub.lastSeq = res.Seq
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- res
	}
}

func (c *Catalog) closeSubscribers() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.closed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub.ch)
	}
}

func asListingError(category string, err error) *providers.ListingError {
	var lerr *providers.ListingError
	if errors.As(err, &lerr) {
		return lerr
	}
	kind := providers.ErrorInternal
	switch {
	case errors.Is(err, context.Canceled):
		kind = providers.ErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = providers.ErrorTimeout
	}
	return providers.NewListingError(kind, category, "listing failed", err)
}
