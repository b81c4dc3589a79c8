// Package trace runs the consumer food-trace pipeline: catalogue lookup,
// geocoding of both endpoints, routing with great-circle fallback, emissions,
// and the demand-log append.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mealsense/mealsense_core/internal/emissions"
	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/routing"
)

// Warning codes attached to a TraceResult
const (
	WarnRoutingDisabled     = "routing_disabled"
	WarnRoutingFailed       = "routing_failed"
	WarnDemandLogAppend     = "demand_log_append_failed"
	WarnRouteShorterThanArc = "route_shorter_than_great_circle"
)

// Kind classifies a trace failure
type Kind string

const (
	InvalidInput  Kind = "invalid_input"
	UnknownFood   Kind = "unknown_food"
	GeocodeFailed Kind = "geocode_failed"
)

// Failure is returned by Trace when no result can be produced.
// Which is "origin" or "destination" for GeocodeFailed.
type Failure struct {
	Kind  Kind
	Which string
	Err   error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case GeocodeFailed:
		return fmt.Sprintf("trace %s (%s): %v", f.Kind, f.Which, f.Err)
	default:
		return fmt.Sprintf("trace %s: %v", f.Kind, f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FoodLookup resolves exact food names
type FoodLookup interface {
	Get(food string) (models.FoodRecord, error)
}

// Geocoder resolves place names
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.GeoPoint, error)
}

// Router computes road routes
type Router interface {
	Route(ctx context.Context, origin, dest models.GeoPoint, apiKey string) (*models.RouteResult, error)
}

// DemandRecorder appends to the demand log
type DemandRecorder interface {
	Append(ctx context.Context, food, originQuery, destQuery string) (models.DemandLogEntry, error)
}

// Orchestrator wires the pipeline's collaborators. It holds no per-request state.
type Orchestrator struct {
	Foods     FoodLookup
	Geocoder  Geocoder
	Router    Router
	Demand    DemandRecorder
	Emissions emissions.Estimator
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	// Now and NewID default to time.Now and uuid.NewString
	Now   func() time.Time
	NewID func() string
}

// Trace runs the pipeline for one request. Every error is a *Failure.
func (o *Orchestrator) Trace(ctx context.Context, foodName, originQuery, destQuery, apiKey string) (*models.TraceResult, error) {
	start := time.Now()
	result, err := o.trace(ctx, foodName, originQuery, destQuery, apiKey)

	outcome := "ok"
	var f *Failure
	if errors.As(err, &f) {
		outcome = string(f.Kind)
	}
	o.Metrics.ObserveTrace(outcome, time.Since(start))

	return result, err
}

func (o *Orchestrator) trace(ctx context.Context, foodName, originQuery, destQuery, apiKey string) (*models.TraceResult, error) {
	logger := o.logger()

	if strings.TrimSpace(originQuery) == "" {
		return nil, &Failure{Kind: InvalidInput, Err: errors.New("origin is empty")}
	}
	if strings.TrimSpace(destQuery) == "" {
		return nil, &Failure{Kind: InvalidInput, Err: errors.New("destination is empty")}
	}

	food, err := o.Foods.Get(foodName)
	if err != nil {
		return nil, &Failure{Kind: UnknownFood, Err: err}
	}

	origin, err := o.Geocoder.Geocode(ctx, originQuery)
	if err != nil {
		logger.Info("origin geocode failed", "food", foodName, "which", "origin", "err", err)
		return nil, &Failure{Kind: GeocodeFailed, Which: "origin", Err: err}
	}
	dest, err := o.Geocoder.Geocode(ctx, destQuery)
	if err != nil {
		logger.Info("destination geocode failed", "food", foodName, "which", "destination", "err", err)
		return nil, &Failure{Kind: GeocodeFailed, Which: "destination", Err: err}
	}

	result := &models.TraceResult{
		ID:          o.newID(),
		Food:        food,
		OriginQuery: originQuery,
		DestQuery:   destQuery,
		Origin:      origin,
		Dest:        dest,
	}

	arcKm := geo.GeodesicKm(origin, dest)

	var route *models.RouteResult
	if apiKey == "" {
		err = &routing.Failure{Kind: routing.AuthMissing, Message: "routing API key is not configured"}
	} else {
		route, err = o.Router.Route(ctx, origin, dest, apiKey)
	}
	if err != nil {
		kind, message := routeFailure(err)
		result.RouteFailure = &models.RouteFailureInfo{Kind: kind, Message: message}
		if kind == string(routing.AuthMissing) {
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    WarnRoutingDisabled,
				Message: "Routing is not configured; distance is the great-circle estimate.",
			})
		} else {
			logger.Warn("routing failed, using great-circle distance", "food", foodName, "kind", kind, "err", err)
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    WarnRoutingFailed,
				Message: "Road route unavailable (" + kind + "); distance is the great-circle estimate.",
			})
		}
	}

	if route != nil && err == nil {
		duration := geo.Round(float64(route.DurationS)/60, 1)
		result.Route = route
		result.DistanceKm = geo.Round(float64(route.DistanceM)/1000, 2)
		result.DurationMin = &duration
		result.DistanceSource = models.DistanceFromRoute

		if result.DistanceKm < geo.Round(arcKm, 2)-0.01 {
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    WarnRouteShorterThanArc,
				Message: fmt.Sprintf("Route distance %.2f km is shorter than the great-circle distance %.2f km.", result.DistanceKm, arcKm),
			})
		}
	} else {
		result.DistanceKm = geo.Round(arcKm, 2)
		result.DistanceSource = models.DistanceFromGreatCircle
	}

	result.TransportCO2Kg = o.Emissions.TransportCO2(result.DistanceKm)
	result.Timestamp = o.now().UTC()

	if _, err := o.Demand.Append(ctx, food.Food, originQuery, destQuery); err != nil {
		logger.Error("demand log append failed", "food", food.Food, "err", err)
		result.Warnings = append(result.Warnings, models.Warning{
			Code:    WarnDemandLogAppend,
			Message: "The selection could not be recorded in the demand log.",
		})
	}

	return result, nil
}

// routeFailure extracts a kind and user-safe message from a router error
func routeFailure(err error) (string, string) {
	var f *routing.Failure
	if errors.As(err, &f) {
		msg := f.Message
		if msg == "" {
			msg = string(f.Kind)
		}
		return string(f.Kind), msg
	}
	return string(routing.NetworkError), "routing service error"
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) newID() string {
	if o.NewID == nil {
		return uuid.NewString()
	}
	return o.NewID()
}
