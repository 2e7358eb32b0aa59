package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopilot/trade-core/internal/coordinator"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/safety"
	"github.com/cryptopilot/trade-core/internal/settings"
	"github.com/cryptopilot/trade-core/internal/venue"
)

type sweepHarness struct {
	monitor *Monitor
	coord   *coordinator.Coordinator
	sim     *venue.SimAdapter
	limits  *settings.StaticProvider
}

func newSweepHarness(t *testing.T, config Config) *sweepHarness {
	t.Helper()

	// No market price is registered so seeded mark prices stay put.
	sim := venue.NewSimAdapter("sim")

	selector := venue.NewSelector(venue.SelectorConfig{
		Breaker: safety.BreakerConfig{FailureThreshold: 100, SuccessThreshold: 1, Window: time.Minute, Cooldown: time.Second},
	}, sim)

	store := coordinator.NewConfirmationStore(time.Minute)
	t.Cleanup(store.Stop)

	limits := settings.NewStaticProvider()
	engine := risk.NewEngine(10, 0.025)
	coord := coordinator.New(engine, selector, store, limits, history.Nop{}, coordinator.Config{
		ConfirmationTTL: time.Minute,
		ExecuteTimeout:  time.Second,
	})

	return &sweepHarness{
		monitor: New(engine, coord, limits, nil, config),
		coord:   coord,
		sim:     sim,
		limits:  limits,
	}
}

func autoTradeLimits(userID string) risk.RiskLimits {
	l := risk.DefaultLimits(userID)
	l.AutoTradeEnabled = true
	return l
}

func openPosition(id, userID string, side risk.PositionSide, entry, mark, leverage float64) risk.Position {
	return risk.Position{
		ID:               id,
		UserID:           userID,
		Market:           "BTCUSDT",
		Side:             side,
		Size:             1.0,
		EntryPrice:       entry,
		MarkPrice:        mark,
		Leverage:         leverage,
		LiquidationPrice: risk.LiquidationPrice(side, entry, leverage),
		Venue:            "sim",
		Status:           risk.StatusOpen,
	}
}

func TestSweep_TakeProfitClosesPosition(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(autoTradeLimits("user-1"))

	// Default take profit is 10%; long from 100 marked at 115 is past it.
	h.sim.SeedPosition(openPosition("pos-tp", "user-1", risk.SideLong, 100, 115, 2))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, SweepResult{Processed: 1, Actions: 1, Errors: 0}, result)

	positions, err := h.coord.Positions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSweep_StopLossClosesShort(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(autoTradeLimits("user-1"))

	// Default stop loss is 5%; a short from 100 marked at 107 is past it.
	h.sim.SeedPosition(openPosition("pos-sl", "user-1", risk.SideShort, 100, 107, 2))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, SweepResult{Processed: 1, Actions: 1, Errors: 0}, result)
}

func TestSweep_NearLiquidationClosesFirst(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(autoTradeLimits("user-1"))

	// 4x long from 100 liquidates at 75; mark 76 is inside the buffer
	// and also past the stop loss, liquidation proximity wins.
	h.sim.SeedPosition(openPosition("pos-liq", "user-1", risk.SideLong, 100, 76, 4))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, 1, result.Actions)
}

func TestSweep_QuietPositionUntouched(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(autoTradeLimits("user-1"))

	h.sim.SeedPosition(openPosition("pos-flat", "user-1", risk.SideLong, 100, 101, 2))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, SweepResult{Processed: 1, Actions: 0, Errors: 0}, result)

	positions, err := h.coord.Positions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestSweep_SkipsUsersWithoutAutoTrade(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(risk.DefaultLimits("user-1")) // AutoTradeEnabled stays false

	h.sim.SeedPosition(openPosition("pos-tp", "user-1", risk.SideLong, 100, 115, 2))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, SweepResult{}, result)
}

func TestSweep_OneFailureDoesNotStopOthers(t *testing.T) {
	h := newSweepHarness(t, DefaultConfig())
	h.limits.Set(autoTradeLimits("user-1"))

	// Both positions trip take profit, but the first carries an unknown
	// venue so its close fails. The second must still get evaluated and
	// closed.
	bad := openPosition("pos-bad", "user-1", risk.SideLong, 100, 115, 2)
	bad.Venue = "ghost"
	h.sim.SeedPosition(bad)
	h.sim.SeedPosition(openPosition("pos-good", "user-1", risk.SideLong, 100, 115, 2))

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Actions)
	assert.Equal(t, 1, result.Errors)
}

func TestSweep_PartialClosePercent(t *testing.T) {
	config := DefaultConfig()
	config.ClosePercent = 50
	h := newSweepHarness(t, config)
	h.limits.Set(autoTradeLimits("user-1"))

	p := openPosition("pos-half", "user-1", risk.SideLong, 100, 115, 2)
	p.Size = 2.0
	h.sim.SeedPosition(p)

	result := h.monitor.Sweep(context.Background())
	assert.Equal(t, 1, result.Actions)

	positions, err := h.coord.Positions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 1.0, positions[0].Size)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	config := DefaultConfig()
	config.Interval = 10 * time.Millisecond
	h := newSweepHarness(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
