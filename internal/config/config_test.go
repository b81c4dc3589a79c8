package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ORS_API_KEY", "")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "mealsense_100_foods.csv", cfg.Data.CataloguePath)
	assert.Equal(t, "consumer_log.json", cfg.Data.LogPath)
	assert.Equal(t, "mealsense", cfg.Geocode.UserAgent)
	assert.Equal(t, 0.002, cfg.TransportCO2Factor)
	assert.Equal(t, 10*time.Second, cfg.Geocode.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Routing.Timeout)
	assert.Equal(t, "driving-car", cfg.Routing.Profile)
	assert.False(t, cfg.RoutingEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ORS_API_KEY", "secret")
	t.Setenv("CATALOGUE_PATH", "/data/foods.xlsx")
	t.Setenv("TRANSPORT_CO2_FACTOR_KG_PER_KM", "0.0035")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.RoutingEnabled())
	assert.Equal(t, "/data/foods.xlsx", cfg.Data.CataloguePath)
	assert.Equal(t, 0.0035, cfg.TransportCO2Factor)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		stage string
	}{
		{name: "Negative factor", key: "TRANSPORT_CO2_FACTOR_KG_PER_KM", value: "-1", stage: "validate"},
		{name: "Non-numeric factor", key: "TRANSPORT_CO2_FACTOR_KG_PER_KM", value: "abc", stage: "parse"},
		{name: "Unknown log level", key: "LOG_LEVEL", value: "loud", stage: "validate"},
		{name: "Bad timeout", key: "GEOCODE_TIMEOUT", value: "soon", stage: "parse"},
		{name: "Latitude out of range", key: "DELIVERY_LAT", value: "91", stage: "validate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := loadFromEnv()
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.stage, cfgErr.Stage)
		})
	}
}
