// Package upstream is the single outbound HTTP path for the geocoding and routing
// adapters. Client enforces the same resilience rules on every call: a user
// agent, a circuit breaker per service, and bounded retries with backoff on
// network errors, 429 and 5xx responses.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Kind classifies an upstream failure after retries are exhausted
type Kind string

const (
	KindNetwork     Kind = "network"
	KindRateLimited Kind = "rate_limited"
	KindUnavailable Kind = "unavailable"
	KindBreakerOpen Kind = "breaker_open"
)

// Error is returned by Do when no usable response was obtained
type Error struct {
	Kind   Kind
	Status int // last HTTP status, 0 for transport errors
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RetryPolicy configures retries
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy is one retry with a short backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		MinWait:    300 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// Client wraps an *http.Client with a circuit breaker and retry policy
type Client struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error
}

// Option configures a Client
type Option func(*Client)

// WithSleepFunc overrides the wait between retries; tests use it to skip delays
func WithSleepFunc(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(b *gobreaker.CircuitBreaker[*http.Response]) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// NewClient creates a Client. breakerName identifies the upstream service.
func NewClient(httpClient *http.Client, breakerName string, policy RetryPolicy, userAgent string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		client:      httpClient,
		breaker:     NewBreaker(breakerName),
		retryPolicy: policy,
		userAgent:   userAgent,
		sleepFn:     sleepCtx,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewBreaker returns the breaker settings shared by all upstream services
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// Do sends req, retrying network errors, 429 and 5xx.
//
// Any other response (2xx-4xx) is returned as-is and the caller closes the body.
// When retries are exhausted, the breaker is open, or the context ends, Do
// returns an *Error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("failed to buffer request body: %w", err)}
		}
	}

	var lastStatus int
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastStatus = 0
		var retryAfter string
		if resp != nil {
			lastStatus = resp.StatusCode
			retryAfter = resp.Header.Get("Retry-After")
			resp.Body.Close()
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Kind: KindBreakerOpen, Err: err}
		}
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, &Error{Kind: KindNetwork, Err: ctxErr}
		}

		if attempt < maxAttempts-1 {
			if sleepErr := c.sleepFn(req.Context(), c.computeBackoff(attempt, retryAfter)); sleepErr != nil {
				return nil, &Error{Kind: KindNetwork, Status: lastStatus, Err: sleepErr}
			}
		}
	}

	return nil, mapError(lastStatus, lastErr)
}

// computeBackoff honours a Retry-After header in seconds, otherwise uses
// exponential backoff with jitter clamped to [MinWait, MaxWait]
func (c *Client) computeBackoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			wait := time.Until(t)
			if wait <= 0 {
				return c.retryPolicy.MinWait
			}
			return min(wait, c.retryPolicy.MaxWait)
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))

	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func mapError(status int, err error) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Err: err}
	case status >= 500:
		return &Error{Kind: KindUnavailable, Status: status, Err: err}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
