package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dex/internal/catalog/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedFetcher blocks each Fetch until its locator is released, so tests pick
// the completion order.
type gatedFetcher struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	records  map[string]models.DetailRecord
	failures map[string]error

	// ignoreContext keeps a fetch blocked after its run is cancelled, like a
	// transport that cannot be interrupted.
	ignoreContext bool

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates:    make(map[string]chan struct{}),
		records:  make(map[string]models.DetailRecord),
		failures: make(map[string]error),
	}
}

func (f *gatedFetcher) add(locator string, rec models.DetailRecord) *gatedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[locator] = rec
	return f
}

func (f *gatedFetcher) fail(locator string, err error) *gatedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[locator] = err
	return f
}

func (f *gatedFetcher) gate(locator string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[locator]
	if !ok {
		g = make(chan struct{})
		f.gates[locator] = g
	}
	return g
}

func (f *gatedFetcher) release(locators ...string) {
	for _, l := range locators {
		close(f.gate(l))
	}
}

func (f *gatedFetcher) Fetch(ctx context.Context, locator string) (models.DetailRecord, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	gate := f.gate(locator)
	if f.ignoreContext {
		<-gate
	} else {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.DetailRecord{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[locator]; ok {
		return models.DetailRecord{}, err
	}
	return f.records[locator], nil
}

// startAggregator runs agg in the background and stops it at test cleanup.
func startAggregator(t *testing.T, agg *Aggregator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- agg.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
}

func waitForSnapshot(t *testing.T, agg *Aggregator, cond func(models.Snapshot) bool) models.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(agg.Snapshot())
	}, 2*time.Second, time.Millisecond)
	return agg.Snapshot()
}

func completed(n int) func(models.Snapshot) bool {
	return func(s models.Snapshot) bool { return s.Ledger.Completed == n }
}

func names(records []models.DetailRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func move(name, category string, power, accuracy models.OptionalInt) models.DetailRecord {
	return models.DetailRecord{Name: name, Category: category, Power: power, Accuracy: accuracy}
}
