package geo

import (
	"fmt"
	"math"

	"github.com/mealsense/mealsense_core/internal/models"
)

// MeanEarthRadiusKm is the IUGG mean radius of the WGS-84 ellipsoid
const MeanEarthRadiusKm = 6371.0088

// GeodesicKm returns the great-circle distance between two points in kilometres
func GeodesicKm(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return MeanEarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// GeodesicMeters is GeodesicKm in metres
func GeodesicMeters(a, b models.GeoPoint) float64 {
	return GeodesicKm(a, b) * 1000
}

// Validate checks coordinate ranges
func Validate(p models.GeoPoint) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %v", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %v", p.Lon)
	}
	return nil
}

// Round rounds half away from zero to the given number of decimals
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
