package venue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/safety"
)

func testSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Breaker: safety.BreakerConfig{
			FailureThreshold: 2,
			Window:           time.Minute,
			Cooldown:         time.Hour,
		},
		CallTimeout: time.Second,
	}
}

func TestCapabilityFor(t *testing.T) {
	assert.Equal(t, CapabilitySpot, CapabilityFor(1.0))
	assert.Equal(t, CapabilitySpot, CapabilityFor(0))
	assert.Equal(t, CapabilityLeveraged, CapabilityFor(1.5))
}

func TestSelector_RoutesByLeverage(t *testing.T) {
	perps := NewSimAdapter("perps", CapabilityLeveraged)
	spot := NewSimAdapter("spot", CapabilitySpot)
	perps.SetPrice("BTCUSDT", 30000)
	spot.SetPrice("BTCUSDT", 30010)

	sel := NewSelector(testSelectorConfig(), perps, spot)

	q, err := sel.Quote(context.Background(), QuoteRequest{Market: "BTCUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 5})
	require.NoError(t, err)
	assert.Equal(t, "perps", q.Venue)

	q, err = sel.Quote(context.Background(), QuoteRequest{Market: "BTCUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 1})
	require.NoError(t, err)
	assert.Equal(t, "spot", q.Venue)
}

func TestSelector_QuoteFallsBack(t *testing.T) {
	primary := NewSimAdapter("primary", CapabilitySpot)
	secondary := NewSimAdapter("secondary", CapabilitySpot)
	secondary.SetPrice("ETHUSDT", 2000)
	primary.FailNext = 1

	sel := NewSelector(testSelectorConfig(), primary, secondary)

	q, err := sel.Quote(context.Background(), QuoteRequest{Market: "ETHUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 1})
	require.NoError(t, err)
	assert.Equal(t, "secondary", q.Venue)
}

func TestSelector_BreakerSkipsUnhealthyVenue(t *testing.T) {
	primary := NewSimAdapter("primary", CapabilitySpot)
	secondary := NewSimAdapter("secondary", CapabilitySpot)
	secondary.SetPrice("ETHUSDT", 2000)
	primary.FailNext = 10

	sel := NewSelector(testSelectorConfig(), primary, secondary)

	// Two failures trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_, err := sel.Quote(context.Background(), QuoteRequest{Market: "ETHUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 1})
		require.NoError(t, err) // fallback still answers
	}

	stats := sel.BreakerStats()
	assert.Equal(t, safety.StateOpen, stats[0].State)

	// Executions now go straight to the healthy secondary.
	exec, err := sel.Execute(context.Background(), ExecuteRequest{
		UserID: "u1", Market: "ETHUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "secondary", exec.Venue)
}

func TestSelector_NoVenueAvailable(t *testing.T) {
	spot := NewSimAdapter("spot", CapabilitySpot)
	sel := NewSelector(testSelectorConfig(), spot)

	_, err := sel.Execute(context.Background(), ExecuteRequest{
		UserID: "u1", Market: "BTCUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 10,
	})
	assert.True(t, traderr.IsNoVenueAvailable(err))
}

func TestSelector_ExecuteDoesNotFallBack(t *testing.T) {
	primary := NewSimAdapter("primary", CapabilitySpot)
	secondary := NewSimAdapter("secondary", CapabilitySpot)
	primary.SetPrice("BTCUSDT", 30000)
	secondary.SetPrice("BTCUSDT", 30000)
	primary.FailNext = 1

	sel := NewSelector(testSelectorConfig(), primary, secondary)

	// A failed placement must surface as a venue error, never re-sent
	// to another venue.
	_, err := sel.Execute(context.Background(), ExecuteRequest{
		UserID: "u1", Market: "BTCUSDT", Side: risk.ActionBuy, Size: 1, Leverage: 1,
	})
	assert.True(t, traderr.IsVenue(err))

	positions, err := secondary.GetPositions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSelector_GetPositionsAggregates(t *testing.T) {
	perps := NewSimAdapter("perps", CapabilityLeveraged)
	spot := NewSimAdapter("spot", CapabilitySpot)
	perps.SeedPosition(risk.Position{ID: "p1", UserID: "u1", Market: "BTCUSDT", Side: risk.SideLong, Size: 1, EntryPrice: 100, MarkPrice: 100, Leverage: 4, Status: risk.StatusOpen})
	spot.SeedPosition(risk.Position{ID: "p2", UserID: "u1", Market: "ETHUSDT", Side: risk.SideHolding, Size: 2, EntryPrice: 50, MarkPrice: 50, Leverage: 1, Status: risk.StatusOpen})

	sel := NewSelector(testSelectorConfig(), perps, spot)

	positions, err := sel.GetPositions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestSelector_CloseRoutesToHoldingVenue(t *testing.T) {
	perps := NewSimAdapter("perps", CapabilityLeveraged)
	perps.SetPrice("BTCUSDT", 100)
	perps.SeedPosition(risk.Position{ID: "p1", UserID: "u1", Market: "BTCUSDT", Side: risk.SideLong, Size: 2, EntryPrice: 100, MarkPrice: 100, Leverage: 4, Status: risk.StatusOpen})

	sel := NewSelector(testSelectorConfig(), perps)

	res, err := sel.Close(context.Background(), "perps", CloseRequest{
		UserID: "u1", PositionID: "p1", Market: "BTCUSDT", Percentage: 50,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.ClosedSize, 1e-9)

	// Unknown venue fails fast.
	_, err = sel.Close(context.Background(), "ghost", CloseRequest{UserID: "u1", PositionID: "p1"})
	assert.True(t, traderr.IsNoVenueAvailable(err))
}

func TestSimAdapter_SeedPositionKeepsPresetVenue(t *testing.T) {
	sim := NewSimAdapter("sim")

	sim.SeedPosition(risk.Position{ID: "p1", UserID: "u1", Market: "BTCUSDT", Side: risk.SideLong, Size: 1, EntryPrice: 100, MarkPrice: 100, Leverage: 2, Status: risk.StatusOpen})
	elsewhere := risk.Position{ID: "p2", UserID: "u1", Market: "ETHUSDT", Side: risk.SideLong, Size: 1, EntryPrice: 50, MarkPrice: 50, Leverage: 2, Status: risk.StatusOpen, Venue: "elsewhere"}
	sim.SeedPosition(elsewhere)

	positions, err := sim.GetPositions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	byID := map[string]string{}
	for _, p := range positions {
		byID[p.ID] = p.Venue
	}
	assert.Equal(t, "sim", byID["p1"])
	assert.Equal(t, "elsewhere", byID["p2"])
}

type recordingHealthSink struct {
	mu     sync.Mutex
	venues map[string]bool
}

func (r *recordingHealthSink) SetVenueHealth(venue string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.venues == nil {
		r.venues = make(map[string]bool)
	}
	r.venues[venue] = healthy
}

func TestSelector_ProbeVenuesReportsEachAdapter(t *testing.T) {
	healthy := NewSimAdapter("perps", CapabilityLeveraged)
	failing := NewSimAdapter("spot", CapabilitySpot)
	failing.FailNext = 1

	sel := NewSelector(testSelectorConfig(), healthy, failing)

	sink := &recordingHealthSink{}
	sel.ProbeVenues(context.Background(), sink)

	assert.Equal(t, map[string]bool{"perps": true, "spot": false}, sink.venues)

	// The failing venue recovers on the next probe.
	sel.ProbeVenues(context.Background(), sink)
	assert.True(t, sink.venues["spot"])
}
