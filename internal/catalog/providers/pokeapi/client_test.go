package pokeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/internal/catalog/providers/contract"
)

// newFakeAPI serves a small PokeAPI-shaped move catalog.
func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("GET /api/v2/move", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "1000" {
			http.Error(w, "unexpected limit", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":2,"next":null,"results":[
			{"name":"tackle","url":"%[1]s/api/v2/move/33/"},
			{"name":"growl","url":"%[1]s/api/v2/move/45/"}
		]}`, srv.URL)
	})
	mux.HandleFunc("GET /api/v2/move/33/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"tackle","type":{"name":"normal","url":"x"},"power":40,"accuracy":100,"pp":35}`)
	})
	mux.HandleFunc("GET /api/v2/move/45/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"growl","type":{"name":"normal","url":"x"},"power":null,"accuracy":100}`)
	})
	mux.HandleFunc("GET /api/v2/move/outage/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /api/v2/move/busy/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	mux.HandleFunc("GET /api/v2/move/garbled/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":`)
	})
	mux.HandleFunc("GET /api/v2/move/slow/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(srv.URL+"/api/v2", append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClientContract(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv)

	suite := &contract.Suite{
		Fetcher: client,
		Lister:  client,
		Fetches: []contract.FetchTest{
			{
				Name:         "damaging move",
				Locator:      srv.URL + "/api/v2/move/33/",
				ExpectedName: "Tackle",
				ValidateFunc: func(r models.DetailRecord) error {
					if p, ok := r.Power.Get(); !ok || p != 40 {
						return fmt.Errorf("power = %v", r.Power)
					}
					return nil
				},
			},
			{
				Name:         "status move without power",
				Locator:      "move/45/",
				ExpectedName: "Growl",
				ValidateFunc: func(r models.DetailRecord) error {
					if r.Power.Valid() {
						return errors.New("status move must have no power")
					}
					return nil
				},
			},
		},
		Lists: []contract.ListTest{
			{Name: "moves", Category: "move", ExpectedCount: 2},
		},
		Errors: []contract.ErrorTest{
			{Name: "not found", Locator: "move/99999/", ExpectedError: providers.ErrorNotFound},
			{Name: "outage", Locator: "move/outage/", ExpectedError: providers.ErrorProviderOutage, ExpectedRetry: true},
			{Name: "rate limited", Locator: "move/busy/", ExpectedError: providers.ErrorRateLimited, ExpectedRetry: true},
			{Name: "bad json", Locator: "move/garbled/", ExpectedError: providers.ErrorBadData},
		},
	}
	suite.Run(t)
}

func TestListReturnsReferencesInListingOrder(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv)

	refs, err := client.List(context.Background(), "move")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "tackle", refs[0].Name)
	assert.Equal(t, srv.URL+"/api/v2/move/33/", refs[0].Locator)
	assert.Equal(t, "growl", refs[1].Name)
}

func TestListFailuresAreListingErrors(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv)

	_, err := client.List(context.Background(), "ability")
	require.Error(t, err)
	var lerr *providers.ListingError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "ability", lerr.Category)
	assert.Equal(t, providers.ErrorNotFound, lerr.Kind)

	srv.Close()
	_, err = client.List(context.Background(), "move")
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, providers.ErrorProviderOutage, lerr.Kind)
	assert.True(t, providers.IsRetryable(err))
}

func TestFetchTimeoutIsAFetchFailure(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv, WithTimeout(20*time.Millisecond))

	_, err := client.Fetch(context.Background(), "move/slow/")
	require.Error(t, err)
	var ff *providers.FetchFailure
	require.ErrorAs(t, err, &ff)
	assert.Equal(t, providers.ErrorTimeout, ff.Category)
	assert.Equal(t, "move/slow/", ff.Locator)
	assert.True(t, ff.Retryable)
}

func TestFetchHonorsCallerCancellation(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, "move/33/")
	assert.Equal(t, providers.ErrorCanceled, providers.GetCategory(err))
}

func TestFetchRejectsEmptyLocator(t *testing.T) {
	srv := newFakeAPI(t)
	client := newTestClient(t, srv)

	_, err := client.Fetch(context.Background(), "")
	assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/", c.baseURL.String())
	assert.Equal(t, DefaultLimit, c.limit)
}
