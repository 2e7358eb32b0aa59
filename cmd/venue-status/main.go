package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/cryptopilot/trade-core/internal/config"
	"github.com/cryptopilot/trade-core/internal/venue"
	"github.com/cryptopilot/trade-core/internal/venue/adapters"
	"github.com/cryptopilot/trade-core/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., config.yaml)")
		timeout    = flag.Duration("timeout", 10*time.Second, "Health check timeout per venue")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	venueAdapters, err := adapters.NewFactory().Build(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to build venue adapters: %v", err)
	}

	selector := venue.NewSelector(venue.SelectorConfig{
		Breaker: cfg.BreakerSettings(),
	}, venueAdapters...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Probe each venue directly so an unhealthy one shows its error
	// instead of being skipped by routing.
	health := make(map[string]error, len(venueAdapters))
	for _, a := range venueAdapters {
		health[a.Name()] = a.HealthCheck(ctx)
	}

	reporting.NewConsoleReporter().PrintVenueStatus(health, selector.BreakerStats())
}
