package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dex/internal/catalog/metrics"
	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/pkg/platform/sentinel"
)

// DefaultConcurrency bounds the number of in-flight detail fetches per run.
const DefaultConcurrency = 16

// Aggregator fans detail fetches out over a Fetcher and merges completions
// into one collection ordered by name.
//
// All mutation happens in the Run goroutine. StartRun and fetch completions
// reach it through channels; readers load the last published Snapshot, which
// is never modified after publication.
type Aggregator struct {
	fetcher     providers.Fetcher
	catalog     string
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	newRunID    func() uuid.UUID

	commands chan startCommand
	results  chan completion
	done     chan struct{}
	started  atomic.Bool

	current atomic.Pointer[models.Snapshot]

	subsMu  sync.Mutex
	subs    map[uint64]chan models.Snapshot
	nextSub uint64
	closed  bool

	// owned by the Run goroutine
	run     *runState
	version uint64
}

type runState struct {
	id      uuid.UUID
	ledger  models.Ledger
	records []models.DetailRecord
	cancel  context.CancelFunc
}

type startCommand struct {
	refs  []models.ResourceReference
	reply chan uuid.UUID
}

type completion struct {
	runID   uuid.UUID
	locator string
	record  models.DetailRecord
	failure *providers.FetchFailure
	latency time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConcurrency sets the worker-pool width. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithCatalog names the catalog in logs and metric labels.
func WithCatalog(name string) Option {
	return func(a *Aggregator) {
		a.catalog = name
	}
}

// WithRunIDGenerator overrides uuid.New, for deterministic tests.
func WithRunIDGenerator(gen func() uuid.UUID) Option {
	return func(a *Aggregator) {
		if gen != nil {
			a.newRunID = gen
		}
	}
}

// New constructs an Aggregator. It does nothing until Run is called.
func New(fetcher providers.Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:     fetcher,
		catalog:     "default",
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
		newRunID:    uuid.New,
		commands:    make(chan startCommand),
		results:     make(chan completion, 64),
		done:        make(chan struct{}),
		subs:        make(map[uint64]chan models.Snapshot),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current.Store(&models.Snapshot{Records: []models.DetailRecord{}})
	return a
}

// Run is the single-writer loop. It blocks until ctx is cancelled, cancels
// the active run's outstanding fetches and returns ctx.Err(). Run must be
// called exactly once.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return sentinel.ErrInvalidState
	}
	defer a.shutdown()

	a.logger.DebugContext(ctx, "aggregator started", "catalog", a.catalog, "concurrency", a.concurrency)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.commands:
			cmd.reply <- a.startRun(ctx, cmd.refs)
		case res := <-a.results:
			// A completion caused by our own cancellation must not settle the run.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.applyResult(ctx, res)
		}
	}
}

// StartRun replaces the collection with an empty one, resets the ledger and
// dispatches one fetch per reference. It returns once dispatch is issued.
// Results of any superseded run are discarded from then on. Calls made before
// Run starts wait for it; calls after Run returns fail with sentinel.ErrClosed.
func (a *Aggregator) StartRun(ctx context.Context, refs []models.ResourceReference) (uuid.UUID, error) {
	cmd := startCommand{
		refs:  slices.Clone(refs),
		reply: make(chan uuid.UUID, 1),
	}
	select {
	case a.commands <- cmd:
	case <-a.done:
		return uuid.Nil, sentinel.ErrClosed
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	// Run replies in the same iteration that accepted the command.
	return <-cmd.reply, nil
}

// Snapshot returns the latest published state.
func (a *Aggregator) Snapshot() models.Snapshot {
	return *a.current.Load()
}

// Status reports Settled once every fetch of the active run has completed.
// Before the first run the aggregator is Settled with an empty collection.
func (a *Aggregator) Status() models.RunStatus {
	return a.current.Load().Status()
}

// Ledger returns the active run's counters.
func (a *Aggregator) Ledger() models.Ledger {
	return a.current.Load().Ledger
}

// Records returns the active run's ordered collection. The slice is shared and
// must not be modified.
func (a *Aggregator) Records() []models.DetailRecord {
	return a.current.Load().Records
}

// Subscribe returns a channel that always holds the most recent snapshot not
// yet received; intermediate snapshots may be skipped. The channel is closed
// by the returned cancel func or when Run exits.
func (a *Aggregator) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	if a.closed {
		close(ch)
		return ch, func() {}
	}
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	ch <- *a.current.Load()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subsMu.Lock()
			defer a.subsMu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

func (a *Aggregator) startRun(ctx context.Context, refs []models.ResourceReference) uuid.UUID {
	if prev := a.run; prev != nil {
		prev.cancel()
		if prev.ledger.Status() == models.RunPending {
			a.logger.InfoContext(ctx, "run superseded",
				"catalog", a.catalog,
				"run_id", prev.id,
				"completed", prev.ledger.Completed,
				"total", prev.ledger.Total,
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &runState{
		id:      a.newRunID(),
		ledger:  models.Ledger{Total: len(refs)},
		records: []models.DetailRecord{},
		cancel:  cancel,
	}
	a.run = run
	a.publish()

	if a.metrics != nil {
		a.metrics.IncrementRunsStarted(a.catalog)
		a.metrics.SetCollectionSize(a.catalog, 0)
	}
	a.logger.InfoContext(ctx, "run started", "catalog", a.catalog, "run_id", run.id, "total", len(refs))

	if len(refs) == 0 {
		cancel()
		a.logger.InfoContext(ctx, "run settled", "catalog", a.catalog, "run_id", run.id, "total", 0, "failed", 0)
		return run.id
	}

	go a.dispatch(runCtx, run.id, refs)
	return run.id
}

func (a *Aggregator) applyResult(ctx context.Context, res completion) {
	run := a.run
	if run == nil || res.runID != run.id {
		if a.metrics != nil {
			a.metrics.IncrementStaleCompletions(a.catalog)
		}
		a.logger.DebugContext(ctx, "stale completion dropped",
			"catalog", a.catalog,
			"run_id", res.runID,
			"locator", res.locator,
		)
		return
	}

	run.ledger.Completed++
	if res.failure != nil {
		run.ledger.Failed++
		if a.metrics != nil {
			a.metrics.IncrementFetches(a.catalog, string(res.failure.Category))
		}
		a.logger.WarnContext(ctx, "detail fetch failed",
			"catalog", a.catalog,
			"run_id", run.id,
			"locator", res.locator,
			"category", res.failure.Category,
			"error", res.failure,
		)
	} else {
		var replaced bool
		run.records, replaced = insertSorted(run.records, res.record)
		if replaced {
			run.ledger.Duplicates++
			if a.metrics != nil {
				a.metrics.IncrementDuplicateNames(a.catalog)
			}
			a.logger.DebugContext(ctx, "duplicate name replaced",
				"catalog", a.catalog,
				"run_id", run.id,
				"name", res.record.Name,
				"locator", res.locator,
			)
		}
		if a.metrics != nil {
			a.metrics.IncrementFetches(a.catalog, "success")
		}
	}
	if a.metrics != nil {
		a.metrics.ObserveFetchLatency(a.catalog, res.latency)
		a.metrics.SetCollectionSize(a.catalog, len(run.records))
	}

	a.publish()

	if run.ledger.Status() == models.RunSettled {
		run.cancel()
		a.logger.InfoContext(ctx, "run settled",
			"catalog", a.catalog,
			"run_id", run.id,
			"total", run.ledger.Total,
			"failed", run.ledger.Failed,
			"duplicates", run.ledger.Duplicates,
		)
	}
}

// publish stores a new snapshot of the active run and notifies subscribers.
func (a *Aggregator) publish() {
	a.version++
	snap := &models.Snapshot{
		RunID:   a.run.id,
		Version: a.version,
		Ledger:  a.run.ledger,
		Records: a.run.records,
	}
	a.current.Store(snap)

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, ch := range a.subs {
		// Only this goroutine sends, so after draining the send cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- *snap
	}
}

func (a *Aggregator) shutdown() {
	close(a.done)
	if a.run != nil {
		a.run.cancel()
	}

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	a.closed = true
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

// insertSorted returns a new slice with rec at its name position, replacing a
// record with the same name. The input slice is left untouched.
func insertSorted(records []models.DetailRecord, rec models.DetailRecord) ([]models.DetailRecord, bool) {
	i, found := slices.BinarySearchFunc(records, rec.Name, compareName)
	next := make([]models.DetailRecord, len(records), len(records)+1)
	copy(next, records)
	if found {
		next[i] = rec
		return next, true
	}
	return slices.Insert(next, i, rec), false
}

func compareName(r models.DetailRecord, name string) int {
	switch {
	case r.Name < name:
		return -1
	case r.Name > name:
		return 1
	default:
		return 0
	}
}
