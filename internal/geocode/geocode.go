// Package geocode resolves free-text place names to coordinates through a
// Nominatim-compatible search API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mealsense/mealsense_core/internal/cache"
	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/upstream"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Kind classifies a geocoding failure
type Kind string

const (
	NotFound     Kind = "not_found"
	NetworkError Kind = "network_error"
	RateLimited  Kind = "rate_limited"
	Malformed    Kind = "malformed"
)

// ErrEmptyQuery is wrapped by a NotFound failure when the query is blank
var ErrEmptyQuery = errors.New("empty place query")

// Failure is returned by Geocode for every unsuccessful lookup
type Failure struct {
	Kind  Kind
	Query string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("geocode %q: %s: %v", f.Query, f.Kind, f.Err)
	}
	return fmt.Sprintf("geocode %q: %s", f.Query, f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// SharedCache is the optional cross-process cache tier
type SharedCache interface {
	GetGeocode(ctx context.Context, query string) (*models.GeoPoint, error)
	SetGeocode(ctx context.Context, query string, p models.GeoPoint, ttl time.Duration) error
}

// Config holds the settings for a Client
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
	Shared    SharedCache // optional
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Client is a Nominatim geocoder with a process-local cache in front of the
// optional shared tier. It is safe for concurrent use.
type Client struct {
	base    *upstream.Client
	baseURL string
	timeout time.Duration
	ttl     time.Duration
	shared  SharedCache
	metrics *metrics.Collector
	logger  *slog.Logger

	mu    sync.RWMutex
	local map[string]models.GeoPoint
}

// NewClient creates a geocoder. Extra options are passed to the upstream client.
func NewClient(httpClient *http.Client, cfg Config, opts ...upstream.Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "mealsense"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    upstream.NewClient(httpClient, "nominatim", upstream.DefaultRetryPolicy(), userAgent, opts...),
		baseURL: baseURL,
		timeout: timeout,
		ttl:     cfg.CacheTTL,
		shared:  cfg.Shared,
		metrics: cfg.Metrics,
		logger:  logger,
		local:   make(map[string]models.GeoPoint),
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves query to a point with DisplayName set.
// Every error is a *Failure.
func (c *Client) Geocode(ctx context.Context, query string) (models.GeoPoint, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.GeoPoint{}, &Failure{Kind: NotFound, Query: query, Err: ErrEmptyQuery}
	}

	key := cache.NormalizeQuery(query)

	c.mu.RLock()
	p, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.GeocodeCacheHit("memory")
		return p, nil
	}

	if c.shared != nil {
		cached, err := c.shared.GetGeocode(ctx, key)
		if err != nil {
			c.logger.Warn("shared geocode cache read failed", "query", key, "err", err)
		} else if cached != nil {
			c.metrics.GeocodeCacheHit("redis")
			c.remember(key, *cached)
			return *cached, nil
		}
	}

	p, err := c.lookup(ctx, query)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			c.metrics.GeocodeResult(string(f.Kind))
		}
		return models.GeoPoint{}, err
	}
	c.metrics.GeocodeResult("ok")

	c.remember(key, p)
	if c.shared != nil && c.ttl > 0 {
		if err := c.shared.SetGeocode(ctx, key, p, c.ttl); err != nil {
			c.logger.Warn("shared geocode cache write failed", "query", key, "err", err)
		}
	}

	return p, nil
}

func (c *Client) remember(key string, p models.GeoPoint) {
	c.mu.Lock()
	c.local[key] = p
	c.mu.Unlock()
}

func (c *Client) lookup(ctx context.Context, query string) (models.GeoPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return models.GeoPoint{}, &Failure{Kind: Malformed, Query: query, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		kind := NetworkError
		var upErr *upstream.Error
		if errors.As(err, &upErr) && upErr.Kind == upstream.KindRateLimited {
			kind = RateLimited
		}
		c.logger.Warn("geocode request failed", "query", query, "kind", kind, "err", err)
		return models.GeoPoint{}, &Failure{Kind: kind, Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GeoPoint{}, &Failure{Kind: Malformed, Query: query, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.GeoPoint{}, &Failure{Kind: Malformed, Query: query, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(results) == 0 {
		return models.GeoPoint{}, &Failure{Kind: NotFound, Query: query}
	}

	p, err := parseResult(results[0])
	if err != nil {
		return models.GeoPoint{}, &Failure{Kind: Malformed, Query: query, Err: err}
	}
	return p, nil
}

// parseResult converts Nominatim's string coordinates
func parseResult(r searchResult) (models.GeoPoint, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid lon %q: %w", r.Lon, err)
	}

	p := models.GeoPoint{Lat: lat, Lon: lon, DisplayName: r.DisplayName}
	if err := geo.Validate(p); err != nil {
		return models.GeoPoint{}, err
	}
	return p, nil
}
