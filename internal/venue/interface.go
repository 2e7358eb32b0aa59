package venue

import (
	"context"
	"time"

	"github.com/cryptopilot/trade-core/internal/risk"
)

// Capability describes what a venue can execute.
type Capability string

const (
	CapabilitySpot      Capability = "spot"
	CapabilityLeveraged Capability = "leveraged"
)

// OrderType is the execution style requested from a venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// QuoteRequest asks a venue for an indicative price and margin.
type QuoteRequest struct {
	Market   string
	Side     risk.TradeAction
	Size     float64
	Leverage float64
}

// Quote is a venue's indicative pricing for a prospective order.
type Quote struct {
	Venue          string
	Market         string
	Price          float64
	RequiredMargin float64
}

// ExecuteRequest places an order at a venue.
type ExecuteRequest struct {
	UserID     string
	Market     string
	Side       risk.TradeAction
	Size       float64
	Leverage   float64
	ReduceOnly bool
	OrderType  OrderType
	LimitPrice float64 // limit orders only
}

// Execution is the venue's confirmation of a placed order. The system
// never assumes success without one.
type Execution struct {
	Venue     string
	OrderID   string
	Market    string
	FillPrice float64
	Size      float64
	Timestamp time.Time
}

// CloseRequest shrinks an existing position. Closes are always
// reduce-only at the venue.
type CloseRequest struct {
	UserID     string
	PositionID string
	Market     string
	Percentage float64 // (0, 100]
}

// CloseResult reports the portion of a position the venue closed.
type CloseResult struct {
	Venue      string
	OrderID    string
	ClosedSize float64
	FillPrice  float64
	Timestamp  time.Time
}

// Adapter is the uniform contract over a remote trading venue. Concrete
// adapters wrap vendor REST APIs and translate vendor errors into the
// trade error taxonomy. All methods are network I/O and must honor the
// deadline on ctx; a timed-out call is a failed call.
type Adapter interface {
	Name() string
	Capabilities() []Capability

	// HealthCheck is a cheap liveness probe used before executing a
	// confirmed intent.
	HealthCheck(ctx context.Context) error

	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	Execute(ctx context.Context, req ExecuteRequest) (*Execution, error)
	Close(ctx context.Context, req CloseRequest) (*CloseResult, error)
	GetPositions(ctx context.Context, userID string) ([]risk.Position, error)
	GetPortfolio(ctx context.Context, userID string) (*risk.PortfolioSnapshot, error)
}

// HasCapability reports whether the adapter advertises cap.
func HasCapability(a Adapter, cap Capability) bool {
	for _, c := range a.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}
