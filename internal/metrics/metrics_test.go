package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ObserveTrace("ok", time.Second)
		c.GeocodeResult("ok")
		c.GeocodeCacheHit("memory")
		c.RouteResult("no_route")
		c.DemandAppend(false)
		c.DemandSinkError("nats")
		c.SetDemandEntries(3)
	})
}

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.ObserveTrace("ok", 200*time.Millisecond)
	c.ObserveTrace("ok", 300*time.Millisecond)
	c.ObserveTrace("unknown_food", time.Millisecond)
	c.GeocodeCacheHit("redis")
	c.DemandAppend(true)
	c.DemandAppend(false)
	c.SetDemandEntries(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Traces.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Traces.WithLabelValues("unknown_food")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GeocodeCacheHits.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DemandAppends.WithLabelValues("error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.DemandEntries))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RouteResult("ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mealsense_route_requests_total{result="ok"} 1`)
	assert.Contains(t, string(body), "mealsense_demand_entries 0")
}
