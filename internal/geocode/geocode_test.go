package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mealsense/mealsense_core/internal/cache"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chennaiJSON = `[{"lat":"13.0836939","lon":"80.270186","display_name":"Chennai, Tamil Nadu, India"}]`

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc, shared SharedCache) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), Config{
		BaseURL:   srv.URL,
		UserAgent: "mealsense-test",
		CacheTTL:  time.Hour,
		Shared:    shared,
	}, upstream.WithSleepFunc(noSleep))
	return c, &calls
}

func TestGeocodeSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Chennai, Tamil Nadu", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "mealsense-test", r.Header.Get("User-Agent"))
		w.Write([]byte(chennaiJSON))
	}, nil)

	p, err := c.Geocode(context.Background(), "  Chennai, Tamil Nadu ")
	require.NoError(t, err)
	assert.InDelta(t, 13.0837, p.Lat, 1e-4)
	assert.InDelta(t, 80.2702, p.Lon, 1e-4)
	assert.Equal(t, "Chennai, Tamil Nadu, India", p.DisplayName)
}

func TestGeocodeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		attempt int32
	}{
		{name: "No results", status: http.StatusOK, body: `[]`, kind: NotFound, attempt: 1},
		{name: "Invalid JSON", status: http.StatusOK, body: `{"oops"`, kind: Malformed, attempt: 1},
		{name: "Bad coordinates", status: http.StatusOK, body: `[{"lat":"north","lon":"80"}]`, kind: Malformed, attempt: 1},
		{name: "Out of range", status: http.StatusOK, body: `[{"lat":"95","lon":"80"}]`, kind: Malformed, attempt: 1},
		{name: "Unexpected status", status: http.StatusBadRequest, body: `{}`, kind: Malformed, attempt: 1},
		{name: "Rate limited", status: http.StatusTooManyRequests, body: ``, kind: RateLimited, attempt: 2},
		{name: "Server error", status: http.StatusBadGateway, body: ``, kind: NetworkError, attempt: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)

			_, err := c.Geocode(context.Background(), "Somewhere")
			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, "Somewhere", f.Query)
			assert.Equal(t, tt.attempt, calls.Load())
		})
	}
}

func TestGeocodeEmptyQuery(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)

	_, err := c.Geocode(context.Background(), "   ")
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, NotFound, f.Kind)
	assert.True(t, errors.Is(err, ErrEmptyQuery))
	assert.Zero(t, calls.Load())
}

func TestGeocodeRetriesTransientFailure(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chennaiJSON))
	}, nil)

	p, err := c.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)
	assert.Equal(t, "Chennai, Tamil Nadu, India", p.DisplayName)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeocodeCachesByNormalizedQuery(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chennaiJSON))
	}, nil)

	for _, q := range []string{"Chennai", "chennai", "  CHENNAI  "} {
		_, err := c.Geocode(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocodeDoesNotCacheFailures(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, nil)

	_, err := c.Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	_, err = c.Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeocodeSharedCacheTier(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	first, firstCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chennaiJSON))
	}, store)
	_, err := first.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)
	assert.Equal(t, int32(1), firstCalls.Load())

	// A second process sharing the Redis tier never reaches the upstream.
	second, secondCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, store)
	p, err := second.Geocode(context.Background(), "chennai")
	require.NoError(t, err)
	assert.Equal(t, "Chennai, Tamil Nadu, India", p.DisplayName)
	assert.Zero(t, secondCalls.Load())
}

type brokenCache struct{}

func (brokenCache) GetGeocode(context.Context, string) (*models.GeoPoint, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) SetGeocode(context.Context, string, models.GeoPoint, time.Duration) error {
	return errors.New("connection refused")
}

func TestGeocodeSharedCacheErrorsDegrade(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chennaiJSON))
	}, brokenCache{})

	_, err := c.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)
	_, err = c.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
