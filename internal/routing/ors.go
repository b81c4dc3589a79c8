// Package routing fetches driving routes from an OpenRouteService-compatible
// directions API.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/upstream"
)

const (
	defaultBaseURL = "https://api.openrouteservice.org"
	defaultProfile = "driving-car"

	// EndpointToleranceM is how far a decoded route may end from the requested point
	EndpointToleranceM = 50.0
)

// ORS error codes meaning no route exists between the points
var noRouteCodes = map[int]bool{
	2004: true, // route distance exceeds the server limit
	2009: true, // route could not be found
	2010: true, // point not near a routable road
}

// Kind classifies a routing failure
type Kind string

const (
	AuthMissing  Kind = "auth_missing"
	AuthRejected Kind = "auth_rejected"
	NoRoute      Kind = "no_route"
	NetworkError Kind = "network_error"
	Malformed    Kind = "malformed"
)

// Failure is returned by Route for every unsuccessful call
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if f.Status != 0 {
		return fmt.Sprintf("route %s (status %d): %s", f.Kind, f.Status, msg)
	}
	return fmt.Sprintf("route %s: %s", f.Kind, msg)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Config holds the settings for a Client
type Config struct {
	BaseURL   string
	Profile   string
	UserAgent string
	Timeout   time.Duration
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Client calls the ORS directions endpoint. The API key is supplied per call.
type Client struct {
	base    *upstream.Client
	baseURL string
	profile string
	timeout time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewClient creates a router. Extra options are passed to the upstream client.
func NewClient(httpClient *http.Client, cfg Config, opts ...upstream.Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	profile := cfg.Profile
	if profile == "" {
		profile = defaultProfile
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    upstream.NewClient(httpClient, "openrouteservice", upstream.DefaultRetryPolicy(), cfg.UserAgent, opts...),
		baseURL: baseURL,
		profile: profile,
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

type directionsRequest struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Instructions bool         `json:"instructions"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
			Segments []struct {
				Steps []struct {
					Instruction string `json:"instruction"`
				} `json:"steps"`
			} `json:"segments"`
		} `json:"properties"`
	} `json:"features"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Route returns the driving route from origin to dest.
// An empty apiKey fails with AuthMissing without any network traffic.
// Every error is a *Failure.
func (c *Client) Route(ctx context.Context, origin, dest models.GeoPoint, apiKey string) (*models.RouteResult, error) {
	result, err := c.route(ctx, origin, dest, apiKey)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			c.metrics.RouteResult(string(f.Kind))
			if f.Kind != AuthMissing {
				c.logger.Warn("route request failed", "kind", f.Kind, "status", f.Status, "err", err)
			}
		}
		return nil, err
	}
	c.metrics.RouteResult("ok")
	return result, nil
}

func (c *Client) route(ctx context.Context, origin, dest models.GeoPoint, apiKey string) (*models.RouteResult, error) {
	if apiKey == "" {
		return nil, &Failure{Kind: AuthMissing, Message: "routing API key is not configured"}
	}
	if err := geo.Validate(origin); err != nil {
		return nil, &Failure{Kind: Malformed, Message: "invalid origin", Err: err}
	}
	if err := geo.Validate(dest); err != nil {
		return nil, &Failure{Kind: Malformed, Message: "invalid destination", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// ORS takes [lon, lat]
	body, err := json.Marshal(directionsRequest{
		Coordinates: [][2]float64{
			{origin.Lon, origin.Lat},
			{dest.Lon, dest.Lat},
		},
		Instructions: true,
	})
	if err != nil {
		return nil, &Failure{Kind: Malformed, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", c.baseURL, c.profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Failure{Kind: Malformed, Err: err}
	}
	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		var upErr *upstream.Error
		status := 0
		if errors.As(err, &upErr) {
			status = upErr.Status
		}
		return nil, &Failure{Kind: NetworkError, Status: status, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Failure{Kind: NetworkError, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp.StatusCode, payload)
	}

	var dr directionsResponse
	if err := json.Unmarshal(payload, &dr); err != nil {
		return nil, &Failure{Kind: Malformed, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return buildResult(dr, origin, dest)
}

func classifyError(status int, payload []byte) *Failure {
	var er errorResponse
	_ = json.Unmarshal(payload, &er)
	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Failure{Kind: AuthRejected, Status: status, Message: msg}
	case status == http.StatusNotFound || noRouteCodes[er.Error.Code]:
		return &Failure{Kind: NoRoute, Status: status, Message: msg}
	default:
		return &Failure{Kind: Malformed, Status: status, Message: msg}
	}
}

func buildResult(dr directionsResponse, origin, dest models.GeoPoint) (*models.RouteResult, error) {
	if len(dr.Features) == 0 {
		return nil, &Failure{Kind: Malformed, Message: "response has no features"}
	}
	f := dr.Features[0]

	geometry := make([]models.GeoPoint, 0, len(f.Geometry.Coordinates)+2)
	for i, c := range f.Geometry.Coordinates {
		if len(c) < 2 {
			return nil, &Failure{Kind: Malformed, Message: fmt.Sprintf("geometry point %d has %d values", i, len(c))}
		}
		p := models.GeoPoint{Lat: c[1], Lon: c[0]}
		if err := geo.Validate(p); err != nil {
			return nil, &Failure{Kind: Malformed, Message: fmt.Sprintf("geometry point %d", i), Err: err}
		}
		geometry = append(geometry, p)
	}
	if len(geometry) == 0 {
		return nil, &Failure{Kind: Malformed, Message: "route geometry is empty"}
	}
	geometry = snapEndpoints(geometry, origin, dest)

	summary := f.Properties.Summary
	if summary.Distance < 0 || summary.Duration < 0 || math.IsNaN(summary.Distance) || math.IsNaN(summary.Duration) {
		return nil, &Failure{Kind: Malformed, Message: "negative route summary"}
	}

	steps := []string{}
	for _, seg := range f.Properties.Segments {
		for _, s := range seg.Steps {
			steps = append(steps, s.Instruction)
		}
	}

	return &models.RouteResult{
		DistanceM: int(math.Round(summary.Distance)),
		DurationS: int(math.Round(summary.Duration)),
		Geometry:  geometry,
		Steps:     steps,
	}, nil
}

// snapEndpoints makes the polyline start at origin and end at dest when the
// service snapped them to a road more than EndpointToleranceM away
func snapEndpoints(geometry []models.GeoPoint, origin, dest models.GeoPoint) []models.GeoPoint {
	origin.DisplayName = ""
	dest.DisplayName = ""

	if geo.GeodesicMeters(geometry[0], origin) > EndpointToleranceM {
		geometry = append([]models.GeoPoint{origin}, geometry...)
	}
	if geo.GeodesicMeters(geometry[len(geometry)-1], dest) > EndpointToleranceM {
		geometry = append(geometry, dest)
	}
	if len(geometry) == 1 {
		geometry = append(geometry, geometry[0])
	}
	return geometry
}
