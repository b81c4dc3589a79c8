// Package config loads MealSense configuration from the environment.
//
// Values are resolved in this order: OS environment, then a .env file in the
// working directory. Defaults apply to anything still unset. Invalid values fail
// Load rather than being silently replaced.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration. It is populated once and never modified.
type Config struct {
	Routing  RoutingConfig
	Geocode  GeocodeConfig
	Data     DataConfig
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Jobs     JobsConfig
	Delivery DeliveryConfig

	TransportCO2Factor float64 `envconfig:"TRANSPORT_CO2_FACTOR_KG_PER_KM" default:"0.002" validate:"gte=0"`
	LogLevel           string  `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// RoutingConfig holds the OpenRouteService settings.
// An empty APIKey disables routing and forces the great-circle fallback.
type RoutingConfig struct {
	APIKey  string        `envconfig:"ORS_API_KEY"`
	BaseURL string        `envconfig:"ORS_BASE_URL" default:"https://api.openrouteservice.org" validate:"required,url"`
	Profile string        `envconfig:"ORS_PROFILE" default:"driving-car" validate:"required"`
	Timeout time.Duration `envconfig:"ROUTE_TIMEOUT" default:"15s" validate:"gt=0"`
}

// GeocodeConfig holds the Nominatim settings
type GeocodeConfig struct {
	BaseURL   string        `envconfig:"NOMINATIM_BASE_URL" default:"https://nominatim.openstreetmap.org" validate:"required,url"`
	UserAgent string        `envconfig:"GEOCODE_USER_AGENT" default:"mealsense" validate:"required"`
	Timeout   time.Duration `envconfig:"GEOCODE_TIMEOUT" default:"10s" validate:"gt=0"`
	CacheTTL  time.Duration `envconfig:"GEOCODE_CACHE_TTL" default:"24h" validate:"gt=0"`
}

// DataConfig points at the local files
type DataConfig struct {
	CataloguePath string `envconfig:"CATALOGUE_PATH" default:"mealsense_100_foods.csv" validate:"required"`
	LogPath       string `envconfig:"LOG_PATH" default:"consumer_log.json" validate:"required"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port               string `envconfig:"API_PORT" default:"8080" validate:"required,numeric"`
	MetricsEnabled     bool   `envconfig:"METRICS_ENABLED" default:"true"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30" validate:"gte=0"`
}

// RedisConfig is optional; an empty URL disables the shared cache tier and rate limiting
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" validate:"omitempty,url"`
}

// DatabaseConfig is optional; an empty URL disables the Postgres demand mirror
type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"5" validate:"gte=1"`
}

// NATSConfig is optional; an empty URL disables demand-event publishing
type NATSConfig struct {
	URL           string `envconfig:"NATS_URL" validate:"omitempty,url"`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"mealsense" validate:"required"`
}

// JobsConfig holds background schedules
type JobsConfig struct {
	DemandDigestSchedule string `envconfig:"DEMAND_DIGEST_SCHEDULE" default:"@hourly"`
}

// DeliveryConfig is the default delivery point used by the food quick view
type DeliveryConfig struct {
	Lat  float64 `envconfig:"DELIVERY_LAT" default:"13.0827" validate:"gte=-90,lte=90"`
	Lon  float64 `envconfig:"DELIVERY_LON" default:"80.2707" validate:"gte=-180,lte=180"`
	Name string  `envconfig:"DELIVERY_NAME" default:"Chennai"`
}

// Error is returned by Load when the environment cannot be turned into a Config
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads .env (if present) and the environment into a validated Config
func Load() (*Config, error) {
	_ = godotenv.Load()
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Stage: "parse", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{Stage: "validate", Err: err}
	}

	return &cfg, nil
}

// RoutingEnabled reports whether an ORS key is configured
func (c *Config) RoutingEnabled() bool {
	return strings.TrimSpace(c.Routing.APIKey) != ""
}

// SlogLevel maps LogLevel onto slog
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
