package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dex/internal/catalog/cache"
	catalogmetrics "dex/internal/catalog/metrics"
	"dex/internal/catalog/service"
	"dex/internal/platform/config"
	"dex/internal/platform/httpserver"
	"dex/internal/platform/logger"
	platformmetrics "dex/internal/platform/metrics"
	redisclient "dex/internal/platform/redis"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Aggregation lives in internal/catalog.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dex:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store, memory := detailStore(cfg, rdb)
	reg, err := buildRegistry(cfg, log, catalogmetrics.New(nil), store)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Addr, newRouter(reg, log, platformmetrics.New(nil), rdb))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Run(gctx)
	})
	g.Go(func() error {
		refreshAll(gctx, reg, log)
		return nil
	})
	if memory != nil {
		g.Go(func() error {
			purgeLoop(gctx, memory, cfg.DetailCacheTTL, log)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting dex", "addr", cfg.Addr, "categories", cfg.Categories, "redis", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("dex stopped")
		return nil
	})
	return g.Wait()
}

// detailStore picks the detail cache: Redis when configured, otherwise an
// in-process cache. A zero TTL disables caching.
func detailStore(cfg config.Config, rdb *redisclient.Client) (cache.Store, *cache.InMemoryCache) {
	if cfg.DetailCacheTTL <= 0 {
		return nil, nil
	}
	if rdb != nil {
		return cache.NewRedisCache(rdb.Client, cfg.DetailCacheTTL), nil
	}
	memory := cache.NewInMemoryCache(cfg.DetailCacheTTL)
	return memory, memory
}

// refreshAll starts the first run of every catalog. Listing failures are
// logged; clients retry through the refresh endpoint.
func refreshAll(ctx context.Context, reg *service.Registry, log *slog.Logger) {
	for _, category := range reg.Categories() {
		c, err := reg.Get(category)
		if err != nil {
			continue
		}
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.WarnContext(ctx, "initial refresh failed", "catalog", category, "error", err)
		}
	}
}

func purgeLoop(ctx context.Context, memory *cache.InMemoryCache, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := memory.Purge(); n > 0 {
				log.DebugContext(ctx, "purged expired details", "count", n)
			}
		}
	}
}
