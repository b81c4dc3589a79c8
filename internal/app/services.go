// Package app wires the MealSense services from configuration. The HTTP server,
// the trace CLI and the connection probe share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealsense/mealsense_core/internal/api"
	"github.com/mealsense/mealsense_core/internal/cache"
	"github.com/mealsense/mealsense_core/internal/catalogue"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/mealsense/mealsense_core/internal/db"
	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/emissions"
	"github.com/mealsense/mealsense_core/internal/geocode"
	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/publisher"
	"github.com/mealsense/mealsense_core/internal/routing"
	"github.com/mealsense/mealsense_core/internal/supplier"
	"github.com/mealsense/mealsense_core/internal/trace"
)

// Services holds the wired components. Redis, DB, Store and NATS are nil when
// their URL is unset or the connection failed at startup.
type Services struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Catalogue *catalogue.Catalogue

	Geocoder     *geocode.Client
	Router       *routing.Client
	Log          *demand.Log
	Recorder     *demand.Recorder
	Orchestrator *trace.Orchestrator
	Dashboard    *supplier.Dashboard

	Redis *cache.Store
	DB    *pgxpool.Pool
	Store *db.DemandStore
	NATS  *publisher.NATSPublisher
}

// Build loads the catalogue and connects the optional services. Only a
// catalogue failure is fatal; optional services that cannot be reached are
// logged and left disabled.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	foods, err := catalogue.Load(cfg.Data.CataloguePath)
	if err != nil {
		return nil, err
	}
	logger.Info("catalogue loaded", "path", cfg.Data.CataloguePath, "foods", foods.Len())

	s := &Services{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewCollector(),
		Catalogue: foods,
	}

	s.connectOptional(ctx)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	geoCfg := geocode.Config{
		BaseURL:   cfg.Geocode.BaseURL,
		UserAgent: cfg.Geocode.UserAgent,
		Timeout:   cfg.Geocode.Timeout,
		CacheTTL:  cfg.Geocode.CacheTTL,
		Metrics:   s.Metrics,
		Logger:    logger,
	}
	if s.Redis != nil {
		geoCfg.Shared = s.Redis
	}
	s.Geocoder = geocode.NewClient(httpClient, geoCfg)

	s.Router = routing.NewClient(httpClient, routing.Config{
		BaseURL:   cfg.Routing.BaseURL,
		Profile:   cfg.Routing.Profile,
		UserAgent: cfg.Geocode.UserAgent,
		Timeout:   cfg.Routing.Timeout,
		Metrics:   s.Metrics,
		Logger:    logger,
	})

	s.Log = demand.NewLog(cfg.Data.LogPath)

	var sinks []demand.Sink
	if s.Store != nil {
		sinks = append(sinks, s.Store)
	}
	if s.NATS != nil {
		sinks = append(sinks, s.NATS)
	}
	s.Recorder = demand.NewRecorder(s.Log, s.Metrics, logger, sinks...)

	s.Orchestrator = &trace.Orchestrator{
		Foods:     foods,
		Geocoder:  s.Geocoder,
		Router:    s.Router,
		Demand:    s.Recorder,
		Emissions: emissions.NewEstimator(cfg.TransportCO2Factor),
		Metrics:   s.Metrics,
		Logger:    logger,
	}

	s.Dashboard = &supplier.Dashboard{
		Log:       s.Log,
		Catalogue: foods,
		Logger:    logger,
	}
	if s.Store != nil {
		s.Dashboard.Store = s.Store
	}

	return s, nil
}

func (s *Services) connectOptional(ctx context.Context) {
	cfg := s.Config

	if cfg.Redis.URL != "" {
		store, err := cache.NewFromURL(ctx, cfg.Redis.URL)
		if err != nil {
			s.Logger.Warn("redis disabled", "err", err)
		} else {
			s.Redis = store
			s.Logger.Info("redis connection established")
		}
	}

	if cfg.Database.URL != "" {
		pool, err := db.Connect(ctx, db.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			s.Logger.Warn("postgres demand mirror disabled", "err", err)
		} else {
			store := db.NewDemandStore(pool)
			if err := store.EnsureSchema(ctx); err != nil {
				s.Logger.Warn("postgres demand mirror disabled", "err", err)
				pool.Close()
			} else {
				s.DB = pool
				s.Store = store
				s.Logger.Info("database connection established")
			}
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, s.Logger)
		if err != nil {
			s.Logger.Warn("nats publishing disabled", "err", err)
		} else {
			s.NATS = pub
			s.Logger.Info("nats connection established")
		}
	}
}

// HealthChecks returns a probe per connected optional service
func (s *Services) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if s.Redis != nil {
		checks["redis"] = s.Redis.HealthCheck
	}
	if s.DB != nil {
		pool := s.DB
		checks["database"] = func(ctx context.Context) error { return db.HealthCheck(ctx, pool) }
	}
	if s.NATS != nil {
		checks["nats"] = func(context.Context) error { return s.NATS.HealthCheck() }
	}
	return checks
}

// APIDeps assembles the HTTP handler dependencies
func (s *Services) APIDeps() api.Deps {
	deps := api.Deps{
		Catalogue:     s.Catalogue,
		Tracer:        s.Orchestrator,
		Demand:        s.Log,
		Dashboard:     s.Dashboard,
		RoutingAPIKey: s.Config.Routing.APIKey,
		Delivery: models.GeoPoint{
			Lat:         s.Config.Delivery.Lat,
			Lon:         s.Config.Delivery.Lon,
			DisplayName: s.Config.Delivery.Name,
		},
		Checks: s.HealthChecks(),
		Logger: s.Logger,
	}
	if s.Config.Server.MetricsEnabled {
		deps.Metrics = s.Metrics.Handler()
	}
	return deps
}

// Close waits for pending demand sinks and releases the connections
func (s *Services) Close() {
	if s.Recorder != nil {
		s.Recorder.Wait()
	}
	if s.NATS != nil {
		s.NATS.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("failed to close redis", "err", err)
		}
	}
}

// Describe is a one-line summary of what is enabled
func (s *Services) Describe() string {
	return fmt.Sprintf("foods=%d routing=%t redis=%t postgres=%t nats=%t",
		s.Catalogue.Len(), s.Config.RoutingEnabled(), s.Redis != nil, s.Store != nil, s.NATS != nil)
}
