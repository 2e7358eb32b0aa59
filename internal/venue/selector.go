package venue

import (
	"context"
	"log"
	"time"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/monitoring"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/safety"
)

const selectorComponent = "venue_selector"

// SelectorConfig tunes routing behavior
type SelectorConfig struct {
	Breaker     safety.BreakerConfig
	CallTimeout time.Duration // per venue call; 0 keeps the caller's deadline
	RateLimit   int           // venue calls per second, 0 disables pacing
}

// Selector routes operations to venue adapters by capability. Intents
// with leverage above 1.0 go to a leveraged venue, everything else to
// spot. Each adapter sits behind a circuit breaker; an unhealthy
// adapter is skipped in favor of the next one with the same capability,
// and when none remain the selector fails fast with NoVenueAvailable
// instead of retrying.
type Selector struct {
	adapters []Adapter // priority order
	breakers map[string]*safety.CircuitBreaker
	limiters map[string]*safety.RateLimiter
	config   SelectorConfig
}

// NewSelector creates a selector over the given adapters. Order matters:
// earlier adapters are preferred when several share a capability.
func NewSelector(config SelectorConfig, adapters ...Adapter) *Selector {
	s := &Selector{
		adapters: adapters,
		breakers: make(map[string]*safety.CircuitBreaker, len(adapters)),
		limiters: make(map[string]*safety.RateLimiter, len(adapters)),
		config:   config,
	}
	for _, a := range adapters {
		s.breakers[a.Name()] = safety.NewCircuitBreaker(a.Name(), config.Breaker)
		if config.RateLimit > 0 {
			s.limiters[a.Name()] = safety.NewRateLimiter(a.Name(), config.RateLimit, config.RateLimit)
		}
	}
	return s
}

// CapabilityFor maps an intent's leverage to the venue capability it needs.
func CapabilityFor(leverage float64) Capability {
	if leverage > 1.0 {
		return CapabilityLeveraged
	}
	return CapabilitySpot
}

// candidates returns healthy adapters for cap, in priority order.
func (s *Selector) candidates(cap Capability) []Adapter {
	var out []Adapter
	for _, a := range s.adapters {
		if !HasCapability(a, cap) {
			continue
		}
		if !s.breakers[a.Name()].Allow() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *Selector) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.CallTimeout)
}

// call runs fn against one adapter, pacing it and feeding the breaker
// and the venue metrics.
func (s *Selector) call(ctx context.Context, a Adapter, op string, fn func(ctx context.Context) error) error {
	if rl := s.limiters[a.Name()]; rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return traderr.Timeout(selectorComponent, "rate_limit", err)
		}
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	breaker := s.breakers[a.Name()]
	err := fn(cctx)
	if err != nil {
		breaker.RecordFailure()
		monitoring.RecordVenueError(a.Name(), op)
	} else {
		breaker.RecordSuccess()
	}
	monitoring.SetBreakerState(a.Name(), float64(breaker.State()))
	return err
}

// Quote fetches an indicative price, falling back across healthy venues.
// Quoting is idempotent, so trying the next candidate is safe.
func (s *Selector) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	cap := CapabilityFor(req.Leverage)
	cands := s.candidates(cap)
	if len(cands) == 0 {
		return nil, traderr.NoVenueAvailable(selectorComponent, "Quote", string(cap))
	}

	var lastErr error
	for _, a := range cands {
		var quote *Quote
		err := s.call(ctx, a, "Quote", func(cctx context.Context) error {
			var qerr error
			quote, qerr = a.Quote(cctx, req)
			return qerr
		})
		if err == nil {
			return quote, nil
		}
		lastErr = err
		log.Printf("venue %s quote failed, trying next: %v", a.Name(), err)
	}
	return nil, traderr.Venue(selectorComponent, "Quote", lastErr)
}

// Execute places an order at the first healthy venue for the intent's
// capability. Execution is never re-sent to another venue after a
// failure: a retried placement could double-execute. The caller must
// re-Prepare instead.
func (s *Selector) Execute(ctx context.Context, req ExecuteRequest) (*Execution, error) {
	cap := CapabilityFor(req.Leverage)
	cands := s.candidates(cap)
	if len(cands) == 0 {
		return nil, traderr.NoVenueAvailable(selectorComponent, "Execute", string(cap))
	}

	a := cands[0]
	var exec *Execution
	err := s.call(ctx, a, "Execute", func(cctx context.Context) error {
		var eerr error
		exec, eerr = a.Execute(cctx, req)
		return eerr
	})
	if err != nil {
		return nil, traderr.Venue(selectorComponent, "Execute", err)
	}
	return exec, nil
}

// Close issues a reduce-only close at the venue holding the position.
// Like Execute, a failed close is not retried elsewhere.
func (s *Selector) Close(ctx context.Context, venueName string, req CloseRequest) (*CloseResult, error) {
	a := s.adapterByName(venueName)
	if a == nil || !s.breakers[a.Name()].Allow() {
		return nil, traderr.NoVenueAvailable(selectorComponent, "Close", venueName)
	}

	var result *CloseResult
	err := s.call(ctx, a, "Close", func(cctx context.Context) error {
		var cerr error
		result, cerr = a.Close(cctx, req)
		return cerr
	})
	if err != nil {
		return nil, traderr.Venue(selectorComponent, "Close", err)
	}
	return result, nil
}

// GetPositions aggregates open positions across every healthy venue.
// A single venue failing does not hide the others' positions.
func (s *Selector) GetPositions(ctx context.Context, userID string) ([]risk.Position, error) {
	var all []risk.Position
	var lastErr error
	queried := 0

	for _, a := range s.adapters {
		if !s.breakers[a.Name()].Allow() {
			continue
		}
		queried++
		var positions []risk.Position
		err := s.call(ctx, a, "GetPositions", func(cctx context.Context) error {
			var perr error
			positions, perr = a.GetPositions(cctx, userID)
			return perr
		})
		if err != nil {
			lastErr = err
			log.Printf("venue %s positions fetch failed: %v", a.Name(), err)
			continue
		}
		all = append(all, positions...)
	}

	if queried == 0 {
		return nil, traderr.NoVenueAvailable(selectorComponent, "GetPositions", "any")
	}
	if all == nil && lastErr != nil {
		return nil, traderr.Venue(selectorComponent, "GetPositions", lastErr)
	}
	return all, nil
}

// GetPortfolio fetches a fresh account snapshot from the venue that
// would carry the intent. Snapshots are never cached.
func (s *Selector) GetPortfolio(ctx context.Context, userID string, cap Capability) (*risk.PortfolioSnapshot, error) {
	cands := s.candidates(cap)
	if len(cands) == 0 {
		return nil, traderr.NoVenueAvailable(selectorComponent, "GetPortfolio", string(cap))
	}

	var lastErr error
	for _, a := range cands {
		var snapshot *risk.PortfolioSnapshot
		err := s.call(ctx, a, "GetPortfolio", func(cctx context.Context) error {
			var perr error
			snapshot, perr = a.GetPortfolio(cctx, userID)
			return perr
		})
		if err == nil {
			return snapshot, nil
		}
		lastErr = err
	}
	return nil, traderr.Venue(selectorComponent, "GetPortfolio", lastErr)
}

// HealthCheck probes the preferred venue for a capability. Used by the
// coordinator before executing a confirmed intent.
func (s *Selector) HealthCheck(ctx context.Context, cap Capability) error {
	cands := s.candidates(cap)
	if len(cands) == 0 {
		return traderr.NoVenueAvailable(selectorComponent, "HealthCheck", string(cap))
	}
	a := cands[0]
	return s.call(ctx, a, "HealthCheck", func(cctx context.Context) error {
		return a.HealthCheck(cctx)
	})
}

// VenueHealthSink receives per-venue liveness results.
type VenueHealthSink interface {
	SetVenueHealth(venue string, healthy bool)
}

// ProbeVenues health-checks every adapter once and reports the results
// to sink. Probes bypass the breakers: an open breaker is exactly the
// venue whose status the sink wants to see.
func (s *Selector) ProbeVenues(ctx context.Context, sink VenueHealthSink) {
	for _, a := range s.adapters {
		cctx, cancel := s.callCtx(ctx)
		err := a.HealthCheck(cctx)
		cancel()
		sink.SetVenueHealth(a.Name(), err == nil)
	}
}

// BreakerStats reports every venue breaker for status output.
func (s *Selector) BreakerStats() []safety.BreakerStats {
	stats := make([]safety.BreakerStats, 0, len(s.adapters))
	for _, a := range s.adapters {
		stats = append(stats, s.breakers[a.Name()].Stats())
	}
	return stats
}

func (s *Selector) adapterByName(name string) Adapter {
	for _, a := range s.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}
