package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/cryptopilot/trade-core/internal/config"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., config.yaml)")
		userID     = flag.String("user", "", "User ID to report on")
		limit      = flag.Int("limit", 200, "Maximum number of records")
		output     = flag.String("output", "", "Output file (.xlsx or .csv); empty prints a table")
	)
	flag.Parse()

	if *userID == "" {
		log.Fatal("Please specify a user with -user flag")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	recorder, err := history.NewSQLiteRecorder(cfg.History.SQLitePath)
	if err != nil {
		log.Fatalf("❌ Failed to open trade history store: %v", err)
	}
	defer recorder.Close()

	records, err := recorder.ListRecent(context.Background(), *userID, *limit)
	if err != nil {
		log.Fatalf("❌ Failed to read trade history: %v", err)
	}

	switch {
	case *output == "":
		reporting.NewConsoleReporter().PrintHistory(records)
	case strings.HasSuffix(strings.ToLower(*output), ".xlsx"):
		if err := reporting.NewExcelReporter().WriteHistoryXLSX(records, *output); err != nil {
			log.Fatalf("❌ Failed to write report: %v", err)
		}
		log.Printf("📊 Report saved: %s (%d trades)", *output, len(records))
	default:
		if err := reporting.NewCSVReporter().WriteHistoryCSV(records, *output); err != nil {
			log.Fatalf("❌ Failed to write report: %v", err)
		}
		log.Printf("📊 Report saved: %s (%d trades)", *output, len(records))
	}
}
