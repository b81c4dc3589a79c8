package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. All recording methods are safe on a nil
// *Collector so components can run without metrics.
type Collector struct {
	reg *prometheus.Registry

	Traces        *prometheus.CounterVec // outcome: ok|invalid_input|unknown_food|geocode_failed
	TraceDuration prometheus.Histogram

	GeocodeRequests  *prometheus.CounterVec // result: ok|not_found|network_error|rate_limited|malformed
	GeocodeCacheHits *prometheus.CounterVec // tier: memory|redis
	RouteRequests    *prometheus.CounterVec // result: ok|auth_missing|auth_rejected|no_route|network_error|malformed

	DemandAppends    *prometheus.CounterVec // result: ok|error
	DemandSinkErrors *prometheus.CounterVec // sink: postgres|nats
	DemandEntries    prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Traces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_traces_total",
			Help: "Food traces by outcome.",
		}, []string{"outcome"}),
		TraceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mealsense_trace_duration_seconds",
			Help:    "Wall time of a full trace including upstream calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_geocode_requests_total",
			Help: "Geocoder upstream lookups by result.",
		}, []string{"result"}),
		GeocodeCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_geocode_cache_hits_total",
			Help: "Geocode cache hits by tier.",
		}, []string{"tier"}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_route_requests_total",
			Help: "Router calls by result.",
		}, []string{"result"}),
		DemandAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_demand_appends_total",
			Help: "Demand log appends by result.",
		}, []string{"result"}),
		DemandSinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealsense_demand_sink_errors_total",
			Help: "Failed demand mirror writes by sink.",
		}, []string{"sink"}),
		DemandEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mealsense_demand_entries",
			Help: "Entries in the demand log at the last digest.",
		}),
	}

	reg.MustRegister(
		c.Traces, c.TraceDuration,
		c.GeocodeRequests, c.GeocodeCacheHits, c.RouteRequests,
		c.DemandAppends, c.DemandSinkErrors, c.DemandEntries,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) ObserveTrace(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Traces.WithLabelValues(outcome).Inc()
	c.TraceDuration.Observe(elapsed.Seconds())
}

func (c *Collector) GeocodeResult(result string) {
	if c == nil {
		return
	}
	c.GeocodeRequests.WithLabelValues(result).Inc()
}

func (c *Collector) GeocodeCacheHit(tier string) {
	if c == nil {
		return
	}
	c.GeocodeCacheHits.WithLabelValues(tier).Inc()
}

func (c *Collector) RouteResult(result string) {
	if c == nil {
		return
	}
	c.RouteRequests.WithLabelValues(result).Inc()
}

func (c *Collector) DemandAppend(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.DemandAppends.WithLabelValues(result).Inc()
}

func (c *Collector) DemandSinkError(sink string) {
	if c == nil {
		return
	}
	c.DemandSinkErrors.WithLabelValues(sink).Inc()
}

func (c *Collector) SetDemandEntries(n int) {
	if c == nil {
		return
	}
	c.DemandEntries.Set(float64(n))
}
