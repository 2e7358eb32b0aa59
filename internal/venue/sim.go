package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/google/uuid"
)

// Compile-time interface check.
var _ Adapter = (*SimAdapter)(nil)

// SimAdapter implements Adapter against in-memory state, for paper
// trading and tests. It fills every order at the configured mark price
// and tracks positions and collateral per user without any network I/O.
type SimAdapter struct {
	name string
	caps []Capability

	mu         sync.Mutex
	prices     map[string]float64 // market -> mark price
	positions  map[string][]risk.Position
	collateral map[string]float64

	// FailNext makes the next N calls fail, for breaker and fallback tests.
	FailNext int
}

// NewSimAdapter creates a simulator advertising the given capabilities.
func NewSimAdapter(name string, caps ...Capability) *SimAdapter {
	if len(caps) == 0 {
		caps = []Capability{CapabilitySpot, CapabilityLeveraged}
	}
	return &SimAdapter{
		name:       name,
		caps:       caps,
		prices:     make(map[string]float64),
		positions:  make(map[string][]risk.Position),
		collateral: make(map[string]float64),
	}
}

// SetPrice sets the fill/mark price for a market.
func (s *SimAdapter) SetPrice(market string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[market] = price
}

// SetCollateral seeds a user's free collateral.
func (s *SimAdapter) SetCollateral(userID string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collateral[userID] = amount
}

// SeedPosition installs an open position directly, bypassing execution.
// A preset Venue is kept so tests can seed positions that route to a
// venue this adapter does not serve.
func (s *SimAdapter) SeedPosition(p risk.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Venue == "" {
		p.Venue = s.name
	}
	s.positions[p.UserID] = append(s.positions[p.UserID], p)
}

func (s *SimAdapter) Name() string               { return s.name }
func (s *SimAdapter) Capabilities() []Capability { return s.caps }

func (s *SimAdapter) failing() error {
	if s.FailNext > 0 {
		s.FailNext--
		return traderr.Venue(s.name, "sim", fmt.Errorf("simulated venue outage"))
	}
	return nil
}

func (s *SimAdapter) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing()
}

func (s *SimAdapter) price(market string) (float64, error) {
	p, ok := s.prices[market]
	if !ok {
		return 0, traderr.Venue(s.name, "price", fmt.Errorf("no price for market %s", market))
	}
	return p, nil
}

func (s *SimAdapter) Quote(_ context.Context, req QuoteRequest) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing(); err != nil {
		return nil, err
	}
	price, err := s.price(req.Market)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Venue:          s.name,
		Market:         req.Market,
		Price:          price,
		RequiredMargin: risk.RequiredMargin(req.Size, price, req.Leverage),
	}, nil
}

func (s *SimAdapter) Execute(_ context.Context, req ExecuteRequest) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing(); err != nil {
		return nil, err
	}
	price, err := s.price(req.Market)
	if err != nil {
		return nil, err
	}

	leverage := req.Leverage
	if leverage < 1 {
		leverage = 1
	}

	if !req.ReduceOnly {
		side := risk.SideHolding
		if leverage > 1 {
			side = risk.SideLong
			if req.Side == risk.ActionSell {
				side = risk.SideShort
			}
		}
		p := risk.Position{
			ID:         uuid.NewString(),
			UserID:     req.UserID,
			Market:     req.Market,
			Side:       side,
			Size:       req.Size,
			EntryPrice: price,
			MarkPrice:  price,
			Leverage:   leverage,
			OpenedAt:   time.Now().UTC(),
			Status:     risk.StatusOpen,
			Venue:      s.name,
		}
		p.LiquidationPrice = risk.LiquidationPrice(side, price, leverage)
		p.MarginRatio = risk.MarginRatio(risk.RequiredMargin(req.Size, price, leverage), req.Size, price)
		s.positions[req.UserID] = append(s.positions[req.UserID], p)
		s.collateral[req.UserID] -= risk.RequiredMargin(req.Size, price, leverage)
	}

	return &Execution{
		Venue:     s.name,
		OrderID:   uuid.NewString(),
		Market:    req.Market,
		FillPrice: price,
		Size:      req.Size,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *SimAdapter) Close(_ context.Context, req CloseRequest) (*CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing(); err != nil {
		return nil, err
	}

	positions := s.positions[req.UserID]
	for i := range positions {
		p := &positions[i]
		if p.ID != req.PositionID || p.Status != risk.StatusOpen {
			continue
		}
		pct := req.Percentage
		if pct <= 0 || pct > 100 {
			pct = 100
		}
		closed := p.Size * pct / 100
		p.Size -= closed
		if p.Size <= 1e-12 {
			p.Size = 0
			p.Status = risk.StatusClosed
		} else {
			// Derived fields follow every size mutation.
			p.LiquidationPrice = risk.LiquidationPrice(p.Side, p.EntryPrice, p.Leverage)
			p.MarginRatio = risk.MarginRatio(risk.RequiredMargin(p.Size, p.EntryPrice, p.Leverage), p.Size, p.MarkPrice)
		}
		s.collateral[req.UserID] += risk.RequiredMargin(closed, p.EntryPrice, p.Leverage)
		return &CloseResult{
			Venue:      s.name,
			OrderID:    uuid.NewString(),
			ClosedSize: closed,
			FillPrice:  p.MarkPrice,
			Timestamp:  time.Now().UTC(),
		}, nil
	}
	return nil, traderr.Venue(s.name, "Close", fmt.Errorf("position %s not found", req.PositionID))
}

func (s *SimAdapter) GetPositions(_ context.Context, userID string) ([]risk.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing(); err != nil {
		return nil, err
	}

	var out []risk.Position
	for _, p := range s.positions[userID] {
		if p.Status != risk.StatusOpen {
			continue
		}
		if mark, ok := s.prices[p.Market]; ok {
			p.MarkPrice = mark
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SimAdapter) GetPortfolio(_ context.Context, userID string) (*risk.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing(); err != nil {
		return nil, err
	}

	var notional, margin float64
	for _, p := range s.positions[userID] {
		if p.Status != risk.StatusOpen {
			continue
		}
		mark := p.MarkPrice
		if mp, ok := s.prices[p.Market]; ok {
			mark = mp
		}
		notional += p.Size * mark
		margin += risk.RequiredMargin(p.Size, p.EntryPrice, p.Leverage)
	}

	snapshot := &risk.PortfolioSnapshot{
		UserID:         userID,
		FreeCollateral: s.collateral[userID],
		TotalNotional:  notional,
	}
	if margin > 0 {
		snapshot.AccountLeverage = notional / margin
	}
	return snapshot, nil
}
