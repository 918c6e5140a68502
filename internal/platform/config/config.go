package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	dexstrings "dex/pkg/platform/strings"
)

const (
	DefaultAddr             = ":8080"
	DefaultPokeAPIBaseURL   = "https://pokeapi.co/api/v2"
	DefaultListingLimit     = 1000
	DefaultFetchConcurrency = 16
	DefaultFetchTimeout     = 10 * time.Second
	DefaultCategories       = "move"
	DefaultIDSearch         = "pokemon"
	DefaultDetailCacheTTL   = 10 * time.Minute
	DefaultLogLevel         = "info"
)

// Config captures everything the server and CLI read from the environment.
type Config struct {
	Addr     string
	LogLevel string

	PokeAPI    PokeAPI
	Categories []string
	// IDSearch lists the categories whose queries also match record IDs.
	IDSearch []string

	// DetailCacheTTL bounds how long fetched details are reused across runs.
	DetailCacheTTL time.Duration
	Redis          RedisConfig

	problems []error
}

// PokeAPI configures the upstream catalog client and the fan-out over it.
type PokeAPI struct {
	BaseURL          string
	ListingLimit     int
	FetchConcurrency int
	FetchTimeout     time.Duration
}

// RedisConfig configures the shared detail cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Unparseable values fall back to their defaults and are reported by Validate.
func FromEnv() Config {
	var c Config
	c.Addr = stringEnv("DEX_ADDR", DefaultAddr)
	c.LogLevel = stringEnv("LOG_LEVEL", DefaultLogLevel)
	c.PokeAPI = PokeAPI{
		BaseURL:          stringEnv("POKEAPI_BASE_URL", DefaultPokeAPIBaseURL),
		ListingLimit:     c.intEnv("LISTING_LIMIT", DefaultListingLimit),
		FetchConcurrency: c.intEnv("FETCH_CONCURRENCY", DefaultFetchConcurrency),
		FetchTimeout:     c.durationEnv("FETCH_TIMEOUT", DefaultFetchTimeout),
	}
	c.Categories = dexstrings.SplitList(stringEnv("CATALOG_CATEGORIES", DefaultCategories))
	c.IDSearch = dexstrings.SplitList(stringEnv("CATALOG_ID_SEARCH", DefaultIDSearch))
	c.DetailCacheTTL = c.durationEnv("DETAIL_CACHE_TTL", DefaultDetailCacheTTL)
	c.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     c.intEnv("REDIS_POOL_SIZE", 10),
		MinIdleConns: c.intEnv("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  c.durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  c.durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: c.durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
	return c
}

// Validate reports every unparseable or out-of-range setting.
func (c Config) Validate() error {
	errs := append([]error(nil), c.problems...)
	if c.Addr == "" {
		errs = append(errs, errors.New("DEX_ADDR must not be empty"))
	}
	if u, err := url.Parse(c.PokeAPI.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("POKEAPI_BASE_URL %q must be an absolute http(s) URL", c.PokeAPI.BaseURL))
	}
	if c.PokeAPI.ListingLimit <= 0 {
		errs = append(errs, fmt.Errorf("LISTING_LIMIT must be positive, got %d", c.PokeAPI.ListingLimit))
	}
	if c.PokeAPI.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.PokeAPI.FetchConcurrency))
	}
	if c.PokeAPI.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.PokeAPI.FetchTimeout))
	}
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("CATALOG_CATEGORIES must name at least one category"))
	}
	if c.DetailCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("DETAIL_CACHE_TTL must not be negative, got %s", c.DetailCacheTTL))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// SearchesByID reports whether queries in category also match record IDs.
func (c Config) SearchesByID(category string) bool {
	return slices.Contains(c.IDSearch, category)
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Config) intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (c *Config) durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
