package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mealsense/mealsense_core/internal/catalogue"
	"github.com/mealsense/mealsense_core/internal/config"
	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/supplier"
)

func main() {
	format := flag.String("format", "xlsx", "Output format: xlsx or zst")
	out := flag.String("out", "", "Output file (required)")
	logPath := flag.String("log", "", "Demand log path (default LOG_PATH)")

	flag.Parse()

	if *out == "" || (*format != "xlsx" && *format != "zst") {
		fmt.Println("Usage: mealsense-demand-report -format=xlsx|zst -out=<file> [-log=<consumer_log.json>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logPath == "" {
		*logPath = cfg.Data.LogPath
	}

	dashboard := &supplier.Dashboard{Log: demand.NewLog(*logPath)}
	if foods, err := catalogue.Load(cfg.Data.CataloguePath); err != nil {
		log.Printf("Catalogue unavailable, report has no sustainability score: %v", err)
	} else {
		dashboard.Catalogue = foods
	}

	entries, err := dashboard.Entries()
	if err != nil {
		log.Fatalf("Failed to read demand log: %v", err)
	}
	log.Printf("Read %d demand entries from %s", len(entries), *logPath)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	w := bufio.NewWriter(f)

	switch *format {
	case "xlsx":
		summary, serr := dashboard.Summary(context.Background())
		if serr != nil {
			log.Fatalf("Failed to summarise demand: %v", serr)
		}
		err = demand.WriteXLSX(w, summary, entries)
	case "zst":
		err = demand.WriteArchive(w, entries)
	}
	if err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", *out, err)
	}

	log.Printf("Report written to %s", *out)
}
