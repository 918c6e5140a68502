package pokeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
)

const (
	DefaultBaseURL = "https://pokeapi.co/api/v2"
	DefaultLimit   = 1000
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 4 << 20
	tracerName   = "dex/internal/catalog/providers/pokeapi"
)

// Client lists and fetches catalog entries from a PokeAPI-compatible service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limit      int
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

var _ providers.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimit sets the page size of the single listing request.
func WithLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithTimeout bounds every request. A fetch that exceeds it fails with the
// timeout category.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client for baseURL, e.g. "https://pokeapi.co/api/v2".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		limit:      DefaultLimit,
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List fetches up to the configured limit of references for category.
func (c *Client) List(ctx context.Context, category string) ([]models.ResourceReference, error) {
	ctx, span := c.tracer.Start(ctx, "pokeapi.List", trace.WithAttributes(
		attribute.String("catalog.category", category),
		attribute.Int("pokeapi.limit", c.limit),
	))
	defer span.End()

	endpoint := c.baseURL.JoinPath(category)
	endpoint.RawQuery = url.Values{"limit": {strconv.Itoa(c.limit)}}.Encode()

	status, body, err := c.get(ctx, endpoint.String())
	if err != nil {
		lerr := providers.NewListingError(transportCategory(err), category, "request failed", err)
		recordSpanError(span, lerr)
		return nil, lerr
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	refs, err := parseListing(category, status, body)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	c.logger.DebugContext(ctx, "listing fetched", "category", category, "count", len(refs))
	return refs, nil
}

// Fetch resolves one locator. Relative locators are resolved against the
// base URL.
func (c *Client) Fetch(ctx context.Context, locator string) (models.DetailRecord, error) {
	ctx, span := c.tracer.Start(ctx, "pokeapi.Fetch", trace.WithAttributes(
		attribute.String("catalog.locator", locator),
	))
	defer span.End()

	target, err := c.resolve(locator)
	if err != nil {
		ff := providers.NewFetchFailure(providers.ErrorBadData, locator, "invalid locator", err)
		recordSpanError(span, ff)
		return models.DetailRecord{}, ff
	}

	status, body, err := c.get(ctx, target)
	if err != nil {
		ff := providers.NewFetchFailure(transportCategory(err), locator, "request failed", err)
		recordSpanError(span, ff)
		return models.DetailRecord{}, ff
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	record, err := parseDetail(locator, status, body)
	if err != nil {
		recordSpanError(span, err)
		return models.DetailRecord{}, err
	}
	return record, nil
}

func (c *Client) resolve(locator string) (string, error) {
	if locator == "" {
		return "", errors.New("empty locator")
	}
	ref, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

func (c *Client) get(ctx context.Context, target string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// transportCategory maps a transport error onto the failure taxonomy.
func transportCategory(err error) providers.ErrorCategory {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return providers.ErrorTimeout
	case errors.Is(err, context.Canceled):
		return providers.ErrorCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		return providers.ErrorTimeout
	default:
		return providers.ErrorProviderOutage
	}
}

// statusCategory maps a non-200 response onto the failure taxonomy.
func statusCategory(status int) providers.ErrorCategory {
	switch {
	case status == http.StatusNotFound:
		return providers.ErrorNotFound
	case status == http.StatusTooManyRequests:
		return providers.ErrorRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return providers.ErrorTimeout
	case status >= 500:
		return providers.ErrorProviderOutage
	default:
		return providers.ErrorBadData
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(providers.GetCategory(err)))
}
