package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/mealsense/mealsense_core/internal/app"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/mealsense/mealsense_core/internal/models"
)

// Probes every configured external service once and reports what works.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	services, err := app.Build(ctx, cfg, quiet)
	if err != nil {
		log.Fatalf("❌ Failed to load catalogue: %v\n", err)
	}
	defer services.Close()

	fmt.Println("🔗 Testing MealSense connections...")
	fmt.Printf("   Catalogue: %s (%d foods)\n", cfg.Data.CataloguePath, services.Catalogue.Len())
	fmt.Printf("   Demand log: %s\n\n", cfg.Data.LogPath)

	failed := false

	// Demand log
	if entries, err := services.Log.ReadAll(); err != nil {
		fmt.Printf("❌ Demand log unreadable: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Demand log readable (%d entries)\n", len(entries))
	}

	// Nominatim
	chennai, err := services.Geocoder.Geocode(ctx, "Chennai")
	if err != nil {
		fmt.Printf("❌ Nominatim (%s): %v\n", cfg.Geocode.BaseURL, err)
		failed = true
	} else {
		fmt.Printf("✅ Nominatim: Chennai -> %.4f, %.4f\n", chennai.Lat, chennai.Lon)
	}

	// OpenRouteService
	if !cfg.RoutingEnabled() {
		fmt.Println("⚠️  ORS_API_KEY not set, routing disabled")
	} else {
		thanjavur := models.GeoPoint{Lat: 10.787, Lon: 79.1378}
		dest := models.GeoPoint{Lat: cfg.Delivery.Lat, Lon: cfg.Delivery.Lon}
		route, err := services.Router.Route(ctx, thanjavur, dest, cfg.Routing.APIKey)
		if err != nil {
			fmt.Printf("❌ OpenRouteService (%s): %v\n", cfg.Routing.BaseURL, err)
			failed = true
		} else {
			fmt.Printf("✅ OpenRouteService: Thanjavur -> %s = %d m, %d steps\n", cfg.Delivery.Name, route.DistanceM, len(route.Steps))
		}
	}

	// Optional services
	probe("Redis", cfg.Redis.URL, services.Redis != nil, &failed)
	if services.Redis != nil {
		for k, v := range services.Redis.Stats() {
			fmt.Printf("   %s: %v\n", k, v)
		}
	}
	probe("Postgres", cfg.Database.URL, services.Store != nil, &failed)
	probe("NATS", cfg.NATS.URL, services.NATS != nil, &failed)

	for name, check := range services.HealthChecks() {
		if err := check(ctx); err != nil {
			fmt.Printf("❌ %s health check: %v\n", name, err)
			failed = true
		}
	}

	fmt.Println()
	if failed {
		fmt.Println("⚠️  Some connections failed")
		services.Close()
		os.Exit(1)
	}
	fmt.Println("🚀 All configured connections work")
}

func probe(name, url string, connected bool, failed *bool) {
	switch {
	case url == "":
		fmt.Printf("➖ %s not configured\n", name)
	case connected:
		fmt.Printf("✅ %s connected\n", name)
	default:
		fmt.Printf("❌ %s unreachable\n", name)
		*failed = true
	}
}
