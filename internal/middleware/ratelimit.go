package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mealsense/mealsense_core/internal/cache"
)

// Counter increments a fixed-window counter
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitMiddleware limits each client IP to perMinute requests per minute.
// Redis errors let the request through.
func RateLimitMiddleware(counter Counter, perMinute int, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *fiber.Ctx) error {
		if perMinute <= 0 {
			return c.Next()
		}

		now := time.Now()
		key := cache.RateKey(c.IP(), now)

		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		count, err := counter.IncrWindow(ctx, key, time.Minute)
		cancel()
		if err != nil {
			logger.Warn("rate limit check failed", "ip", c.IP(), "err", err)
			return c.Next()
		}

		reset := (now.Unix()/60 + 1) * 60
		c.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(perMinute) {
			retryAfter := reset - now.Unix()
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests per minute",
				"limit":       perMinute,
				"retry_after": retryAfter,
			})
		}

		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(perMinute)-count, 10))
		return c.Next()
	}
}
