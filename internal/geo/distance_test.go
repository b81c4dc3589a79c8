package geo

import (
	"testing"

	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestGeodesicKm(t *testing.T) {
	tests := []struct {
		name     string
		a, b     models.GeoPoint
		expected float64
		delta    float64
	}{
		{
			name:     "Identical points",
			a:        models.GeoPoint{Lat: 13.0827, Lon: 80.2707},
			b:        models.GeoPoint{Lat: 13.0827, Lon: 80.2707},
			expected: 0,
			delta:    0,
		},
		{
			name:     "Antipodal points",
			a:        models.GeoPoint{Lat: 0, Lon: 0},
			b:        models.GeoPoint{Lat: 0, Lon: 180},
			expected: 20015,
			delta:    1,
		},
		{
			name:     "Antipodal through the poles",
			a:        models.GeoPoint{Lat: 90, Lon: 0},
			b:        models.GeoPoint{Lat: -90, Lon: 0},
			expected: 20015,
			delta:    1,
		},
		{
			name:     "Thanjavur to Chennai",
			a:        models.GeoPoint{Lat: 10.7870, Lon: 79.1378},
			b:        models.GeoPoint{Lat: 13.0827, Lon: 80.2707},
			expected: 283,
			delta:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, GeodesicKm(tt.a, tt.b), tt.delta)
		})
	}
}

func TestGeodesicKmIsSymmetric(t *testing.T) {
	a := models.GeoPoint{Lat: 28.6139, Lon: 77.2090}
	b := models.GeoPoint{Lat: 19.0760, Lon: 72.8777}
	assert.InDelta(t, GeodesicKm(a, b), GeodesicKm(b, a), 1e-9)
}

func TestIdenticalPointsRoundToZero(t *testing.T) {
	p := models.GeoPoint{Lat: -33.8688, Lon: 151.2093}
	assert.Equal(t, 0.0, Round(GeodesicKm(p, p), 2))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		point    models.GeoPoint
		hasError bool
	}{
		{name: "Valid", point: models.GeoPoint{Lat: 14.7, Lon: -17.4}},
		{name: "Edges", point: models.GeoPoint{Lat: -90, Lon: 180}},
		{name: "Latitude too large", point: models.GeoPoint{Lat: 95, Lon: 0}, hasError: true},
		{name: "Longitude too small", point: models.GeoPoint{Lat: 0, Lon: -200}, hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.point)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 345.0, Round(345000.0/1000, 2))
	assert.Equal(t, 300.0, Round(18000.0/60, 1))
	assert.Equal(t, 0.13, Round(0.125, 2))
	assert.Equal(t, 12.3, Round(12.34, 1))
}
