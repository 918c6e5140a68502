package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/internal/catalog/providers/mocks"
	"dex/internal/catalog/query"
	"dex/pkg/platform/sentinel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var details = map[string]models.DetailRecord{
	"move/33/": {Name: "Tackle", Category: "Normal", Power: models.Some(40), Accuracy: models.Some(100)},
	"move/45/": {Name: "Growl", Category: "Normal", Power: models.None(), Accuracy: models.Some(100)},
	"move/52/": {Name: "Ember", Category: "Fire", Power: models.Some(40), Accuracy: models.Some(100)},
}

var moveRefs = []models.ResourceReference{
	{Name: "tackle", Locator: "move/33/"},
	{Name: "growl", Locator: "move/45/"},
	{Name: "ember", Locator: "move/52/"},
}

func newFetcher(ctrl *gomock.Controller) *mocks.MockFetcher {
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, locator string) (models.DetailRecord, error) {
			rec, ok := details[locator]
			if !ok {
				return models.DetailRecord{}, providers.NewFetchFailure(providers.ErrorNotFound, locator, "unknown", nil)
			}
			return rec, nil
		}).AnyTimes()
	return fetcher
}

func runCatalog(t *testing.T, c *Catalog) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func waitSettled(t *testing.T, c *Catalog, runID uuid.UUID) query.Result {
	t.Helper()
	var res query.Result
	require.Eventually(t, func() bool {
		res = c.Current()
		return res.Snapshot.RunID == runID && res.Snapshot.Status() == models.RunSettled
	}, 2*time.Second, 5*time.Millisecond)
	return res
}

func TestRefreshAggregatesListing(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(moveRefs, nil)

	c := New("move", lister, newFetcher(ctrl))
	runCatalog(t, c)

	runID, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, runID)

	res := waitSettled(t, c, runID)
	assert.Equal(t, []string{"Ember", "Growl", "Tackle"}, names(res.Items))
	assert.Equal(t, models.Ledger{Total: 3, Completed: 3}, c.Ledger())
	assert.Equal(t, models.RunSettled, c.RunStatus())
}

func TestQueryFiltersCurrentCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(moveRefs, nil)

	c := New("move", lister, newFetcher(ctrl))
	runCatalog(t, c)

	runID, err := c.Refresh(context.Background())
	require.NoError(t, err)
	waitSettled(t, c, runID)

	res := c.OnQueryChanged("OW")
	assert.Equal(t, "OW", res.Query)
	assert.Equal(t, []string{"Growl"}, names(res.Items))
	assert.Equal(t, []string{"Growl"}, names(c.CurrentFilteredView()))

	res = c.OnQueryChanged("  ")
	assert.Len(t, res.Items, 3)
}

func TestQuerySurvivesNewRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(moveRefs, nil).Times(2)

	c := New("move", lister, newFetcher(ctrl))
	runCatalog(t, c)

	c.OnQueryChanged("em")
	first, err := c.Refresh(context.Background())
	require.NoError(t, err)
	waitSettled(t, c, first)

	second, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	res := waitSettled(t, c, second)
	assert.Equal(t, "em", res.Query)
	assert.Equal(t, []string{"Ember"}, names(res.Items))
}

func TestListingErrorLeavesPreviousViewUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	outage := providers.NewListingError(providers.ErrorProviderOutage, "move", "upstream 503", nil)
	gomock.InOrder(
		lister.EXPECT().List(gomock.Any(), "move").Return(moveRefs, nil),
		lister.EXPECT().List(gomock.Any(), "move").Return(nil, outage),
	)

	c := New("move", lister, newFetcher(ctrl))
	runCatalog(t, c)

	runID, err := c.Refresh(context.Background())
	require.NoError(t, err)
	before := waitSettled(t, c, runID)

	_, err = c.Refresh(context.Background())
	require.Error(t, err)
	var lerr *providers.ListingError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, providers.ErrorProviderOutage, lerr.Kind)
	assert.True(t, providers.IsRetryable(err))

	after := c.Current()
	assert.Equal(t, runID, after.Snapshot.RunID)
	assert.Equal(t, before.Snapshot.Version, after.Snapshot.Version)
	assert.Equal(t, names(before.Items), names(after.Items))
}

func TestPlainListerErrorsBecomeListingErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(nil, errors.New("boom"))
	lister.EXPECT().List(gomock.Any(), "move").Return(nil, context.DeadlineExceeded)

	c := New("move", lister, newFetcher(ctrl))

	_, err := c.Refresh(context.Background())
	assert.Equal(t, providers.ErrorInternal, providers.GetCategory(err))
	assert.True(t, providers.IsListingError(err))

	_, err = c.Refresh(context.Background())
	assert.Equal(t, providers.ErrorTimeout, providers.GetCategory(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailedFetchesAreCountedNotReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(append(moveRefs, models.ResourceReference{Name: "gone", Locator: "move/0/"}), nil)

	c := New("move", lister, newFetcher(ctrl))
	runCatalog(t, c)

	runID, err := c.Refresh(context.Background())
	require.NoError(t, err)
	res := waitSettled(t, c, runID)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, models.Ledger{Total: 4, Completed: 4, Failed: 1}, res.Snapshot.Ledger)
}

func TestSubscribeDeliversSettledView(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "move").Return(moveRefs, nil)

	c := New("move", lister, newFetcher(ctrl))
	updates, cancel := c.Subscribe()
	defer cancel()

	initial := <-updates
	assert.Equal(t, uuid.Nil, initial.Snapshot.RunID)
	assert.Empty(t, initial.Items)

	runCatalog(t, c)
	runID, err := c.Refresh(context.Background())
	require.NoError(t, err)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case res := <-updates:
			if res.Snapshot.RunID == runID && res.Snapshot.Status() == models.RunSettled {
				assert.Equal(t, []string{"Ember", "Growl", "Tackle"}, names(res.Items))
				return
			}
		case <-timeout:
			t.Fatal("no settled view delivered")
		}
	}
}

func TestSubscriberKeepsLatestQueryWhenDeliveriesReorder(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := New("move", mocks.NewMockLister(ctrl), mocks.NewMockFetcher(ctrl))
	updates, cancel := c.Subscribe()
	defer cancel()
	<-updates

	earlier := c.OnQueryChanged("ow")
	latest := c.OnQueryChanged("ta")
	require.Greater(t, latest.Seq, earlier.Seq)
	assert.Equal(t, earlier.Snapshot.Version, latest.Snapshot.Version)

	// the callback for the earlier query arrives late
	c.broadcast(earlier)

	got := <-updates
	assert.Equal(t, "ta", got.Query)
	select {
	case res := <-updates:
		t.Fatalf("unexpected extra view for query %q", res.Query)
	default:
	}
}

func TestIDSearchMatchesLocatorID(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, locator string) (models.DetailRecord, error) {
			byLocator := map[string]string{"pokemon/1/": "Bulbasaur", "pokemon/25/": "Pikachu", "pokemon/125/": "Electabuzz"}
			return models.DetailRecord{ID: models.LocatorID(locator), Name: byLocator[locator]}, nil
		}).AnyTimes()
	refs := []models.ResourceReference{
		{Name: "bulbasaur", Locator: "pokemon/1/"},
		{Name: "pikachu", Locator: "pokemon/25/"},
		{Name: "electabuzz", Locator: "pokemon/125/"},
	}

	byID := New("pokemon", mocks.NewMockLister(ctrl), fetcher, WithIDSearch())
	byName := New("pokemon", mocks.NewMockLister(ctrl), fetcher)
	runCatalog(t, byID)
	runCatalog(t, byName)

	for _, c := range []*Catalog{byID, byName} {
		runID, err := c.StartRun(context.Background(), refs)
		require.NoError(t, err)
		waitSettled(t, c, runID)
	}

	assert.Equal(t, []string{"Electabuzz", "Pikachu"}, names(byID.OnQueryChanged("25").Items))
	assert.Equal(t, []string{"Pikachu"}, names(byID.OnQueryChanged("pika").Items))
	assert.Empty(t, byName.OnQueryChanged("25").Items)
}

func TestSubscribersClosedWhenRunReturns(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := New("move", mocks.NewMockLister(ctrl), newFetcher(ctrl))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()
	<-updates

	cancel()
	require.NoError(t, <-done)
	_, open := <-updates
	assert.False(t, open)

	late, _ := c.Subscribe()
	_, open = <-late
	assert.False(t, open)

	_, err := c.StartRun(context.Background(), moveRefs)
	assert.ErrorIs(t, err, sentinel.ErrClosed)
}

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	fetcher := newFetcher(ctrl)

	reg, err := NewRegistry(New("move", lister, fetcher), New("ability", lister, fetcher))
	require.NoError(t, err)
	assert.Equal(t, []string{"ability", "move"}, reg.Categories())

	c, err := reg.Get("move")
	require.NoError(t, err)
	assert.Equal(t, "move", c.Category())

	_, err = reg.Get("berry")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = NewRegistry(New("move", lister, fetcher), New("move", lister, fetcher))
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func names(records []models.DetailRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}
