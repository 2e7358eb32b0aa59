package adapters

import (
	"log"

	"github.com/cryptopilot/trade-core/internal/config"
	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/venue"
	"github.com/cryptopilot/trade-core/internal/venue/bybit"
)

const factoryComponent = "venue-factory"

// Factory creates venue adapters based on configuration
type Factory struct{}

// NewFactory creates a new venue factory instance
func NewFactory() *Factory {
	return &Factory{}
}

// Build creates the venue adapters the configuration enables, in
// routing priority order: Bybit first for leveraged coverage, Alpaca
// as the spot fallback. With UseSimulator set, a single in-memory
// venue replaces both.
func (f *Factory) Build(cfg *config.Config) ([]venue.Adapter, error) {
	if cfg.Venues.UseSimulator {
		log.Println("venue factory: using in-memory simulator venue")
		return []venue.Adapter{venue.NewSimAdapter("sim")}, nil
	}

	var adapters []venue.Adapter

	if cfg.Venues.Bybit.APIKey != "" {
		adapter, err := NewBybitAdapter(bybit.Config{
			APIKey:    cfg.Venues.Bybit.APIKey,
			APISecret: cfg.Venues.Bybit.Secret,
			Testnet:   cfg.Venues.Bybit.Testnet,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Venues.Alpaca.APIKey != "" {
		adapter, err := NewAlpacaAdapter(AlpacaConfig{
			APIKey:    cfg.Venues.Alpaca.APIKey,
			APISecret: cfg.Venues.Alpaca.Secret,
			BaseURL:   cfg.Venues.Alpaca.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, traderr.Configuration(factoryComponent, "Build",
			"no venue adapters configured")
	}
	return adapters, nil
}

// SupportedVenues returns the venue names this factory can build
func (f *Factory) SupportedVenues() []string {
	return []string{"bybit", "alpaca", "sim"}
}
