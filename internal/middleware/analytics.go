package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLog holds information about an API request for logging
type RequestLog struct {
	Endpoint       string
	Method         string
	ResponseTimeMs int
	ResponseStatus int
	Food           string
	TraceID        string
	IPAddress      string
	UserAgent      string
}

// Locals keys handlers may set for the request log
const (
	LocalFood    = "food"
	LocalTraceID = "trace_id"
)

// AnalyticsMiddleware writes one structured log line per API request
func AnalyticsMiddleware(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		entry := RequestLog{
			Endpoint:       c.Path(),
			Method:         c.Method(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			ResponseStatus: status,
			IPAddress:      c.IP(),
			UserAgent:      c.Get(fiber.HeaderUserAgent),
		}
		if v, ok := c.Locals(LocalFood).(string); ok {
			entry.Food = v
		}
		if v, ok := c.Locals(LocalTraceID).(string); ok {
			entry.TraceID = v
		}

		logRequest(c.UserContext(), logger, entry)
		return err
	}
}

func logRequest(ctx context.Context, logger *slog.Logger, r RequestLog) {
	attrs := []any{
		"endpoint", r.Endpoint,
		"method", r.Method,
		"status", r.ResponseStatus,
		"ms", r.ResponseTimeMs,
		"ip", r.IPAddress,
	}
	if r.Food != "" {
		attrs = append(attrs, "food", r.Food)
	}
	if r.TraceID != "" {
		attrs = append(attrs, "trace_id", r.TraceID)
	}
	if r.UserAgent != "" {
		attrs = append(attrs, "user_agent", r.UserAgent)
	}

	level := slog.LevelInfo
	if r.ResponseStatus >= 500 {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "api request", attrs...)
}
