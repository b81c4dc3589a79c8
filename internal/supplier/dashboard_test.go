package supplier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	summary models.DemandSummary
	counts  map[string]int
	err     error
}

func (s *fakeStore) Summary(context.Context, time.Time, int) (models.DemandSummary, error) {
	return s.summary, s.err
}

func (s *fakeStore) FoodCounts(context.Context) (map[string]int, error) {
	return s.counts, s.err
}

func newDemandLog(t *testing.T) *demand.Log {
	t.Helper()
	clock := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := demand.NewLog(filepath.Join(t.TempDir(), "log.json"), demand.WithClock(func() time.Time { return clock }))
	for _, food := range []string{"Rice", "Rice", "Tomato", "Unlisted"} {
		_, err := l.Append(food, "Somewhere", "Chennai")
		require.NoError(t, err)
	}
	return l
}

func TestDashboardFromLog(t *testing.T) {
	d := &Dashboard{
		Log:       newDemandLog(t),
		Catalogue: testCatalogue(t),
		Now:       func() time.Time { return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC) },
	}

	s, err := d.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 4, s.LastSevenDays)
	assert.Equal(t, models.DemandCount{Key: "Rice", Count: 2}, s.TopFoods[0])
	require.NotNil(t, s.AvgSustainabilityScore)
	// (73 + 73 + 93) / 3
	assert.Equal(t, 79.7, *s.AvgSustainabilityScore)
}

func TestDashboardPrefersStore(t *testing.T) {
	store := &fakeStore{
		summary: models.DemandSummary{Total: 40, TopFoods: []models.DemandCount{{Key: "Milk", Count: 40}}},
		counts:  map[string]int{"Milk": 40},
	}
	d := &Dashboard{Log: newDemandLog(t), Store: store, Catalogue: testCatalogue(t)}

	s, err := d.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, s.Total)
	require.NotNil(t, s.AvgSustainabilityScore)
	assert.Equal(t, 68.0, *s.AvgSustainabilityScore)
}

func TestDashboardFallsBackWhenStoreFails(t *testing.T) {
	d := &Dashboard{
		Log:       newDemandLog(t),
		Store:     &fakeStore{err: errors.New("connection refused")},
		Catalogue: testCatalogue(t),
	}

	s, err := d.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
}

func TestDashboardCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0o644))

	d := &Dashboard{Log: demand.NewLog(path)}
	_, err := d.Summary(context.Background())
	assert.True(t, errors.Is(err, demand.ErrLogCorrupt))
}
