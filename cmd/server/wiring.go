package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dex/internal/catalog/cache"
	"dex/internal/catalog/handler"
	catalogmetrics "dex/internal/catalog/metrics"
	"dex/internal/catalog/providers"
	"dex/internal/catalog/providers/pokeapi"
	"dex/internal/catalog/service"
	"dex/internal/platform/config"
	platformmetrics "dex/internal/platform/metrics"
	redisclient "dex/internal/platform/redis"
	"dex/pkg/platform/httputil"
)

const healthTimeout = 2 * time.Second

// buildRegistry creates one catalog per configured category, all sharing the
// PokeAPI client and the detail cache.
func buildRegistry(cfg config.Config, log *slog.Logger, m *catalogmetrics.Metrics, store cache.Store) (*service.Registry, error) {
	client, err := pokeapi.New(cfg.PokeAPI.BaseURL,
		pokeapi.WithLimit(cfg.PokeAPI.ListingLimit),
		pokeapi.WithTimeout(cfg.PokeAPI.FetchTimeout),
		pokeapi.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	var fetcher providers.Fetcher = client
	if store != nil {
		fetcher = cache.NewCachingFetcher(client, store, log)
	}

	catalogs := make([]*service.Catalog, 0, len(cfg.Categories))
	for _, category := range cfg.Categories {
		opts := []service.Option{
			service.WithLogger(log),
			service.WithMetrics(m),
			service.WithConcurrency(cfg.PokeAPI.FetchConcurrency),
		}
		if cfg.SearchesByID(category) {
			opts = append(opts, service.WithIDSearch())
		}
		catalogs = append(catalogs, service.New(category, client, fetcher, opts...))
	}
	return service.NewRegistry(catalogs...)
}

func newRouter(reg *service.Registry, log *slog.Logger, m *platformmetrics.Metrics, rdb *redisclient.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/healthz", healthz(rdb))
	r.Handle("/metrics", promhttp.Handler())
	handler.New(handler.FromRegistry(reg), log).Register(r)
	return r
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
}

func healthz(rdb *redisclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb == nil {
			httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := rdb.Health(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Redis: "unreachable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Redis: "ok"})
	}
}
