package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/mealsense/mealsense_core/internal/app"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/mealsense/mealsense_core/internal/trace"
)

func main() {
	food := flag.String("food", "", "Food name exactly as catalogued (required)")
	from := flag.String("from", "", "Origin place name (required)")
	to := flag.String("to", "", "Destination place name (required)")
	timeout := flag.Duration("timeout", 45*time.Second, "Overall deadline for the trace")

	flag.Parse()

	if *food == "" || *from == "" || *to == "" {
		fmt.Println(`Usage: mealsense-trace -food=<name> -from="<place>" -to="<place>"`)
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	services, err := app.Build(ctx, cfg, slogger)
	if err != nil {
		log.Fatalf("Failed to load catalogue: %v", err)
	}
	defer services.Close()

	result, err := services.Orchestrator.Trace(ctx, *food, *from, *to, cfg.Routing.APIKey)
	if err != nil {
		var f *trace.Failure
		if errors.As(err, &f) {
			fmt.Fprintf(os.Stderr, "trace failed (%s): %v\n", f.Kind, err)
			if f.Kind == trace.UnknownFood {
				fmt.Fprintf(os.Stderr, "known foods: %v\n", services.Catalogue.AllNames())
			}
		} else {
			fmt.Fprintf(os.Stderr, "trace failed: %v\n", err)
		}
		services.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}
