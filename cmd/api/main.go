package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mealsense/mealsense_core/internal/api"
	"github.com/mealsense/mealsense_core/internal/app"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/mealsense/mealsense_core/internal/jobs"
	"github.com/mealsense/mealsense_core/internal/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(slogger)
	slogger.Info("starting MealSense API server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, slogger)
	if err != nil {
		log.Fatalf("Failed to load catalogue: %v", err)
	}
	defer services.Close()
	slogger.Info("services ready", "enabled", services.Describe())
	if !cfg.RoutingEnabled() {
		slogger.Warn("ORS_API_KEY is not set; traces use great-circle distance")
	}

	var digestPub jobs.DigestPublisher
	if services.NATS != nil {
		digestPub = services.NATS
	}
	digest := jobs.NewDemandDigest(services.Dashboard, digestPub, services.Metrics, slogger)
	if cfg.Jobs.DemandDigestSchedule != "" {
		if err := digest.Start(cfg.Jobs.DemandDigestSchedule); err != nil {
			log.Fatalf("Failed to schedule demand digest: %v", err)
		}
		defer digest.Stop()
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:      "MealSense API",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: api.ErrorHandler(slogger),
	})

	// Middleware
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	fiberApp.Use(middleware.AnalyticsMiddleware(slogger))

	var traceLimiter fiber.Handler
	if services.Redis != nil {
		traceLimiter = middleware.RateLimitMiddleware(services.Redis, cfg.Server.RateLimitPerMinute, slogger)
	}

	api.NewHandler(services.APIDeps()).Register(fiberApp, traceLimiter)

	// 404 handler
	fiberApp.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slogger.Info("server listening", "addr", addr)
		return fiberApp.Listen(addr)
	})
	g.Go(func() error {
		<-gCtx.Done()
		slogger.Info("shutting down gracefully")
		return fiberApp.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slogger.Error("server stopped", "err", err)
	}
}
