package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithSleepFunc(noSleep)}, opts...)
	return NewClient(&http.Client{Timeout: 2 * time.Second}, "test", DefaultRetryPolicy(), "mealsense-test", opts...)
}

func TestDoSetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "mealsense-test", got)
}

func TestDoRetriesOnceAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := newTestClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{`{"a":1}`, `{"a":1}`}, bodies)
}

func TestDoErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   Kind
	}{
		{name: "Rate limited", status: http.StatusTooManyRequests, kind: KindRateLimited},
		{name: "Server error", status: http.StatusServiceUnavailable, kind: KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)

			_, err = newTestClient().Do(req)
			require.Error(t, err)

			var upErr *Error
			require.True(t, errors.As(err, &upErr))
			assert.Equal(t, tt.kind, upErr.Kind)
			assert.Equal(t, tt.status, upErr.Status)
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestDoPassesThroughClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = newTestClient().Do(req)
	var upErr *Error
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, KindNetwork, upErr.Kind)
	assert.Zero(t, upErr.Status)
}

func TestDoBreakerOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "trip-fast",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	c := newTestClient(WithBreaker(breaker))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	var upErr *Error
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, KindBreakerOpen, upErr.Kind)
	assert.Equal(t, gobreaker.StateOpen, breaker.State())
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(nil, "test", DefaultRetryPolicy(), "", WithSleepFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestComputeBackoff(t *testing.T) {
	c := NewClient(nil, "test", RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second}, "")

	assert.Equal(t, time.Second, c.computeBackoff(0, "1"))
	assert.Equal(t, time.Second, c.computeBackoff(0, "120"), "clamped to MaxWait")
	assert.Equal(t, 100*time.Millisecond, c.computeBackoff(0, ""))

	for attempt := 1; attempt < 6; attempt++ {
		d := c.computeBackoff(attempt, "garbage")
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}
