package models

import "time"

// DistanceSource records where a trace's distance came from
type DistanceSource string

const (
	DistanceFromRoute       DistanceSource = "route"
	DistanceFromGreatCircle DistanceSource = "great_circle"
)

// FoodRecord is one immutable catalogue row.
// Optional numeric columns are nil when the cell was absent or blank.
type FoodRecord struct {
	Food               string   `json:"food"`
	Category           string   `json:"category"`
	OriginState        string   `json:"origin_state"`
	OriginLat          *float64 `json:"origin_lat,omitempty"`
	OriginLon          *float64 `json:"origin_lon,omitempty"`
	CostINRPerKg       *float64 `json:"cost_inr_per_kg,omitempty"`
	CarbonKgCO2ePerKg  *float64 `json:"carbon_kg_co2e_per_kg,omitempty"`
	WaterLPerKg        *float64 `json:"water_l_per_kg,omitempty"`
	CaloriesPer100g    *float64 `json:"calories_per_100g,omitempty"`
	ProteinG           *float64 `json:"protein_g,omitempty"`
	CarbsG             *float64 `json:"carbs_g,omitempty"`
	FatG               *float64 `json:"fat_g,omitempty"`
	DistanceKmTemplate *float64 `json:"distance_km_template,omitempty"`
}

// Origin returns the catalogued origin coordinates, if both are present
func (f FoodRecord) Origin() (GeoPoint, bool) {
	if f.OriginLat == nil || f.OriginLon == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *f.OriginLat, Lon: *f.OriginLon}, true
}

// GeoPoint is a WGS-84 coordinate pair
type GeoPoint struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
}

// RouteResult is a road route between two points
type RouteResult struct {
	DistanceM int        `json:"distance_m"`
	DurationS int        `json:"duration_s"`
	Geometry  []GeoPoint `json:"geometry"`
	Steps     []string   `json:"steps"`
}

// RouteFailureInfo explains why a trace fell back to great-circle distance
type RouteFailureInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Warning is a non-fatal issue attached to a result
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TraceResult is the output of one food trace
type TraceResult struct {
	ID             string            `json:"id"`
	Food           FoodRecord        `json:"food"`
	OriginQuery    string            `json:"origin_query"`
	DestQuery      string            `json:"dest_query"`
	Origin         GeoPoint          `json:"origin"`
	Dest           GeoPoint          `json:"dest"`
	Route          *RouteResult      `json:"route"`
	RouteFailure   *RouteFailureInfo `json:"route_failure,omitempty"`
	DistanceKm     float64           `json:"distance_km"`
	DistanceSource DistanceSource    `json:"distance_source"`
	DurationMin    *float64          `json:"duration_min"`
	TransportCO2Kg float64           `json:"transport_co2_kg"`
	Warnings       []Warning         `json:"warnings,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// DemandLogEntry is one consumer selection.
// Timestamp is UTC ISO-8601 with second precision.
type DemandLogEntry struct {
	Timestamp   string `json:"timestamp"`
	Food        string `json:"food"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// DemandCount is a grouped demand figure
type DemandCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DemandSummary aggregates the demand log for the supplier dashboard
type DemandSummary struct {
	Total                  int           `json:"total"`
	LastSevenDays          int           `json:"last_7_days"`
	TopFoods               []DemandCount `json:"top_foods"`
	TopDestinations        []DemandCount `json:"top_destinations"`
	AvgSustainabilityScore *float64      `json:"avg_sustainability_score,omitempty"`
	GeneratedAt            time.Time     `json:"generated_at"`
}
