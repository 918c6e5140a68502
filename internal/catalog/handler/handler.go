package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dex/internal/catalog/providers"
	"dex/internal/catalog/query"
	"dex/internal/catalog/service"
	"dex/pkg/platform/httputil"
	"dex/pkg/platform/sentinel"
)

// Catalog defines the per-category operations the endpoints need.
type Catalog interface {
	Refresh(ctx context.Context) (uuid.UUID, error)
	OnQueryChanged(text string) query.Result
	Current() query.Result
}

// Lookup resolves a category to its catalog, or fails with sentinel.ErrNotFound.
type Lookup func(category string) (Catalog, error)

// FromRegistry adapts a service registry to a Lookup.
func FromRegistry(reg *service.Registry) Lookup {
	return func(category string) (Catalog, error) {
		c, err := reg.Get(category)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Handler wires catalog endpoints to the catalog service.
type Handler struct {
	lookup Lookup
	logger *slog.Logger
}

// New constructs a catalog handler with its dependencies.
func New(lookup Lookup, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{lookup: lookup, logger: logger}
}

// Register mounts catalog endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/catalog/{category}", func(r chi.Router) {
		r.Get("/", h.HandleView)
		r.Get("/status", h.HandleStatus)
		r.Post("/refresh", h.HandleRefresh)
	})
}

// HandleRefresh handles POST /catalog/{category}/refresh requests.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)
	start := time.Now()

	c, ok := h.catalog(w, r)
	if !ok {
		return
	}

	runID, err := c.Refresh(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "catalog refresh failed",
			"request_id", requestID,
			"catalog", chi.URLParam(r, "category"),
			"error", err,
		)
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "catalog refresh started",
		"request_id", requestID,
		"catalog", chi.URLParam(r, "category"),
		"run_id", runID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, RefreshResponse{RunID: runID})
}

// HandleView handles GET /catalog/{category}?q= requests. A q parameter
// replaces the catalog's filter text; without one the current view is
// returned unchanged.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}

	var res query.Result
	if values := r.URL.Query(); values.Has("q") {
		res = c.OnQueryChanged(values.Get("q"))
	} else {
		res = c.Current()
	}
	httputil.WriteJSON(w, http.StatusOK, FromResult(res))
}

// HandleStatus handles GET /catalog/{category}/status requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.catalog(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(c.Current().Snapshot))
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) (Catalog, bool) {
	c, err := h.lookup(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var lerr *providers.ListingError
	switch {
	case errors.As(err, &lerr):
		httputil.WriteError(w, http.StatusBadGateway, "listing_"+string(lerr.Kind), lerr.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, sentinel.ErrClosed), errors.Is(err, context.Canceled):
		httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", fmt.Sprint(err))
	}
}
