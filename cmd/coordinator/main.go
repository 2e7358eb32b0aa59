package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptopilot/trade-core/internal/api"
	"github.com/cryptopilot/trade-core/internal/config"
	"github.com/cryptopilot/trade-core/internal/coordinator"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/logger"
	"github.com/cryptopilot/trade-core/internal/monitor"
	"github.com/cryptopilot/trade-core/internal/monitoring"
	"github.com/cryptopilot/trade-core/internal/notifications"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/settings"
	"github.com/cryptopilot/trade-core/internal/venue"
	"github.com/cryptopilot/trade-core/internal/venue/adapters"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., config.yaml)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	fileLog, err := logger.NewLogger("coordinator")
	if err != nil {
		log.Printf("⚠️ File logging disabled: %v", err)
	} else {
		defer fileLog.Close()
	}

	venueAdapters, err := adapters.NewFactory().Build(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to build venue adapters: %v", err)
	}

	selector := venue.NewSelector(venue.SelectorConfig{
		Breaker:     cfg.BreakerSettings(),
		CallTimeout: cfg.Safety.VenueCallTimeout.Std(),
		RateLimit:   cfg.Safety.VenueRateLimit,
	}, venueAdapters...)

	recorder, err := history.NewSQLiteRecorder(cfg.History.SQLitePath)
	if err != nil {
		log.Fatalf("❌ Failed to open trade history store: %v", err)
	}
	defer recorder.Close()

	store := coordinator.NewConfirmationStore(time.Minute)
	defer store.Stop()

	engine := risk.NewEngine(cfg.Risk.MinOrderNotional, cfg.Risk.LiquidationBuffer)
	limits := settings.NewStaticProvider()

	coord := coordinator.New(engine, selector, store, limits, recorder, coordinator.Config{
		ConfirmationTTL: cfg.Coordinator.ConfirmationTTL.Std(),
		ExecuteTimeout:  cfg.Coordinator.ExecuteTimeout.Std(),
	})

	health := monitoring.NewHealthChecker(2 * cfg.Monitor.Interval.Std())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background position monitor.
	mon := monitor.New(engine, coord, limits, health, monitor.Config{
		Interval:     cfg.Monitor.Interval.Std(),
		Concurrency:  cfg.Monitor.Concurrency,
		ClosePercent: cfg.Monitor.ClosePercent,
	})
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		mon.SetNotifier(notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
		log.Println("📣 Telegram alerts enabled")
	}
	go mon.Run(ctx)

	// Venue liveness feeds the health endpoint alongside sweep recency.
	go func() {
		ticker := time.NewTicker(cfg.Monitor.Interval.Std())
		defer ticker.Stop()
		for {
			selector.ProbeVenues(ctx, health)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Ops endpoints live on their own port so the API surface can be
	// exposed without metrics.
	opsMux := http.NewServeMux()
	opsMux.Handle("GET /metrics", monitoring.NewMetricsHandler())
	opsMux.Handle("GET /healthz", health)
	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: opsMux,
	}
	go func() {
		log.Printf("📊 Metrics listening on :%d", cfg.Server.MetricsPort)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Metrics server stopped: %v", err)
		}
	}()

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler: api.NewServer(coord, recorder, health).Handler(),
	}
	go func() {
		log.Printf("🚀 Trade API listening on :%d (env: %s)", cfg.Server.APIPort, cfg.Environment)
		if fileLog != nil {
			fileLog.Info("trade API listening on :%d", cfg.Server.APIPort)
		}
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ API server stopped: %v", err)
			health.RecordError(fmt.Sprintf("api server: %v", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Metrics shutdown: %v", err)
	}

	if fileLog != nil {
		fileLog.Info("coordinator stopped")
	}
	log.Println("👋 Coordinator stopped")
	os.Exit(0)
}
