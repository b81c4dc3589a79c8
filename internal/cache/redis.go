// Package cache wraps the optional shared Redis tier: geocode results that
// outlive a single process, and fixed-window request counters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed cache. The zero value is not usable; use New or NewFromURL.
type Store struct {
	client *redis.Client
}

// NewFromURL connects to the Redis server at url (redis:// or rediss://) and pings it
func NewFromURL(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	s := New(redis.NewClient(opts))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return s, nil
}

// New wraps an existing client
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying client for middleware that needs raw commands
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

// NormalizeQuery lowercases a free-text place name and collapses whitespace
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// GeocodeKey generates a cache key for a place query
func GeocodeKey(query string) string {
	hash := sha256.Sum256([]byte(NormalizeQuery(query)))
	return fmt.Sprintf("geocode:%x", hash[:8])
}

// GetGeocode retrieves a cached geocode result. A miss returns (nil, nil).
func (s *Store) GetGeocode(ctx context.Context, query string) (*models.GeoPoint, error) {
	data, err := s.client.Get(ctx, GeocodeKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p models.GeoPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached geocode: %w", err)
	}

	return &p, nil
}

// SetGeocode caches a geocode result
func (s *Store) SetGeocode(ctx context.Context, query string, p models.GeoPoint, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal geocode: %w", err)
	}

	return s.client.Set(ctx, GeocodeKey(query), data, ttl).Err()
}

// RateKey is the counter key for one subject in the minute window containing now
func RateKey(subject string, now time.Time) string {
	return fmt.Sprintf("rl:%s:minute:%d", subject, now.Unix()/60)
}

// IncrWindow increments a counter and sets its expiry on first use
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// HealthCheck performs a health check on the Redis connection
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (s *Store) Stats() map[string]interface{} {
	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}
