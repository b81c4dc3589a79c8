package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mealsense/mealsense_core/internal/catalogue"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foodsCSV = `Food,Category,Origin State,Carbon_kgCO2e_per_kg
Rice,Grain,Tamil Nadu,2.7
Milk,Dairy,Gujarat,3.2
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "foods.csv")
	require.NoError(t, os.WriteFile(path, []byte(foodsCSV), 0o644))

	cfg := &config.Config{TransportCO2Factor: 0.002}
	cfg.Data.CataloguePath = path
	cfg.Data.LogPath = filepath.Join(dir, "consumer_log.json")
	cfg.Geocode.UserAgent = "mealsense-test"
	cfg.Server.MetricsEnabled = true
	cfg.Delivery.Name = "Chennai"
	return cfg
}

func TestBuildWithoutOptionalServices(t *testing.T) {
	s, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2, s.Catalogue.Len())
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.Store)
	assert.Nil(t, s.NATS)
	assert.Nil(t, s.Dashboard.Store)
	assert.Empty(t, s.HealthChecks())
	assert.Equal(t, "foods=2 routing=false redis=false postgres=false nats=false", s.Describe())

	deps := s.APIDeps()
	assert.NotNil(t, deps.Metrics)
	assert.Equal(t, "Chennai", deps.Delivery.DisplayName)
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	s, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Redis)
	checks := s.HealthChecks()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}

func TestBuildDisablesUnreachableServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1"
	cfg.Server.MetricsEnabled = false

	s, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Redis)
	assert.Nil(t, s.APIDeps().Metrics)
}

func TestBuildFailsOnMissingCatalogue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.CataloguePath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := Build(context.Background(), cfg, nil)
	var le *catalogue.LoadError
	assert.True(t, errors.As(err, &le))
}
