package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cryptopilot/trade-core/internal/coordinator"
	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/monitoring"
	"github.com/cryptopilot/trade-core/internal/notifications"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/settings"
)

const (
	triggerTakeProfit      = "take_profit"
	triggerStopLoss        = "stop_loss"
	triggerNearLiquidation = "near_liquidation"
)

// Config tunes the background position monitor
type Config struct {
	Interval     time.Duration // time between sweeps
	Concurrency  int           // parallel position evaluations per sweep
	ClosePercent float64       // how much of a triggered position to close
}

// DefaultConfig returns the standard monitor settings
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		Concurrency:  4,
		ClosePercent: 100,
	}
}

// SweepResult summarizes one pass over all monitored positions
type SweepResult struct {
	Processed int `json:"processed"`
	Actions   int `json:"actions"`
	Errors    int `json:"errors"`
}

// positionJob is one position queued for evaluation
type positionJob struct {
	position risk.Position
	limits   risk.RiskLimits
}

// Monitor periodically sweeps open positions for every user with
// auto-trade enabled and issues reduce-only closes when take-profit,
// stop-loss, or liquidation-proximity thresholds trip. One position
// failing never stops the rest of the sweep.
type Monitor struct {
	engine   *risk.Engine
	coord    *coordinator.Coordinator
	limits   settings.LimitsProvider
	health   *monitoring.HealthChecker
	notifier notifications.Notifier
	config   Config
}

// New creates a position monitor. health may be nil.
func New(engine *risk.Engine, coord *coordinator.Coordinator, limits settings.LimitsProvider,
	health *monitoring.HealthChecker, config Config) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.ClosePercent <= 0 || config.ClosePercent > 100 {
		config.ClosePercent = 100
	}
	return &Monitor{
		engine:   engine,
		coord:    coord,
		limits:   limits,
		health:   health,
		notifier: notifications.Nop{},
		config:   config,
	}
}

// SetNotifier routes auto-close alerts to the given notifier.
func (m *Monitor) SetNotifier(n notifications.Notifier) {
	if n != nil {
		m.notifier = n
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One
// sweep runs immediately on start.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		result := m.Sweep(ctx)
		log.Printf("monitor sweep: processed=%d actions=%d errors=%d",
			result.Processed, result.Actions, result.Errors)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep evaluates every open position of every auto-trade user once.
// Position evaluations run on a bounded worker pool; each failure is
// counted and isolated so the remaining positions still get evaluated.
func (m *Monitor) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	users, err := m.limits.AutoTradeUsers(ctx)
	if err != nil {
		log.Printf("monitor: listing auto-trade users: %v", err)
		result.Errors++
		return result
	}

	jobs := make(chan positionJob, m.config.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < m.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				acted, jerr := m.evaluate(ctx, job.position, job.limits)
				mu.Lock()
				result.Processed++
				if acted {
					result.Actions++
				}
				if jerr != nil {
					result.Errors++
				}
				mu.Unlock()
			}
		}()
	}

	for _, userID := range users {
		limits, lerr := m.limits.Limits(ctx, userID)
		if lerr != nil {
			log.Printf("monitor: limits for %s: %v", userID, lerr)
			mu.Lock()
			result.Errors++
			mu.Unlock()
			continue
		}

		positions, perr := m.coord.Positions(ctx, userID)
		if perr != nil {
			log.Printf("monitor: positions for %s: %v", userID, perr)
			mu.Lock()
			result.Errors++
			mu.Unlock()
			continue
		}

		for _, p := range positions {
			if p.Status != risk.StatusOpen {
				continue
			}
			jobs <- positionJob{position: p, limits: limits}
		}
	}

	close(jobs)
	wg.Wait()

	monitoring.RecordSweep(result.Processed, result.Errors)
	if m.health != nil {
		m.health.RecordSweep()
	}
	return result
}

// evaluate checks one position's triggers and closes it when one
// trips. Liquidation proximity outranks stop loss, stop loss outranks
// take profit. A close lost to a concurrent close attempt is neither
// an action nor an error.
func (m *Monitor) evaluate(ctx context.Context, p risk.Position, limits risk.RiskLimits) (acted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			acted = false
			err = fmt.Errorf("evaluating position %s: panic: %v", p.ID, r)
			log.Printf("monitor: %v", err)
		}
	}()

	trigger := ""
	switch {
	case m.engine.NearLiquidation(p):
		trigger = triggerNearLiquidation
	case risk.ShouldStopLoss(p, limits):
		trigger = triggerStopLoss
	case risk.ShouldTakeProfit(p, limits):
		trigger = triggerTakeProfit
	default:
		return false, nil
	}

	_, cerr := m.coord.ClosePosition(ctx, p, m.config.ClosePercent, history.SourceMonitor, trigger)
	if cerr != nil {
		if traderr.IsPositionClosing(cerr) {
			// Another close already owns this position.
			return false, nil
		}
		log.Printf("monitor: closing position %s (%s): %v", p.ID, trigger, cerr)
		return false, cerr
	}

	monitoring.RecordSweepAction(trigger)
	log.Printf("monitor: closed %.1f%% of position %s on %s (%s %s)",
		m.config.ClosePercent, p.ID, trigger, p.Market, p.Side)
	if nerr := m.notifier.SendAlert("warning", fmt.Sprintf(
		"Closed %.1f%% of %s %s position on %s", m.config.ClosePercent, p.Market, p.Side, trigger)); nerr != nil {
		log.Printf("monitor: sending alert: %v", nerr)
	}
	return true, nil
}
