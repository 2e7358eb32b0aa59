package risk

import (
	"time"
)

// TradeAction is the direction of a trade intent
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// PositionSide is the direction of exposure on an open position
type PositionSide string

const (
	SideLong    PositionSide = "long"
	SideShort   PositionSide = "short"
	SideHolding PositionSide = "holding" // spot, no leverage
)

// PositionStatus tracks the lifecycle of a position
type PositionStatus string

const (
	StatusOpen       PositionStatus = "open"
	StatusClosed     PositionStatus = "closed"
	StatusLiquidated PositionStatus = "liquidated"
)

// TradeIntent is a structured trading request. The chat layer is
// responsible for extracting it from free text; this core never parses
// messages. Immutable once stored in a confirmation record.
type TradeIntent struct {
	UserID     string      `json:"user_id"`
	Action     TradeAction `json:"action"`
	Market     string      `json:"market"`
	Amount     float64     `json:"amount"`
	Leverage   float64     `json:"leverage"` // 1.0 = spot
	StopLoss   float64     `json:"stop_loss,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// IsLeveraged reports whether the intent needs a leveraged venue.
func (i TradeIntent) IsLeveraged() bool {
	return i.Leverage > 1.0
}

// Side maps the intent action to the position side it opens.
func (i TradeIntent) Side() PositionSide {
	if !i.IsLeveraged() {
		return SideHolding
	}
	if i.Action == ActionSell {
		return SideShort
	}
	return SideLong
}

// Position is an open or closed exposure at a venue. Liquidation price
// and margin ratio are derived fields: recompute them whenever size,
// leverage or entry price change, never carry them across a mutation.
type Position struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Market           string         `json:"market"`
	Side             PositionSide   `json:"side"`
	Size             float64        `json:"size"`
	EntryPrice       float64        `json:"entry_price"`
	MarkPrice        float64        `json:"mark_price"`
	Leverage         float64        `json:"leverage"`
	LiquidationPrice float64        `json:"liquidation_price"`
	MarginRatio      float64        `json:"margin_ratio"`
	UnrealizedPnL    float64        `json:"unrealized_pnl"`
	OpenedAt         time.Time      `json:"opened_at"`
	Status           PositionStatus `json:"status"`
	Venue            string         `json:"venue"`
}

// Notional returns the position's current notional value.
func (p Position) Notional() float64 {
	return p.Size * p.MarkPrice
}

// PortfolioSnapshot is a read-only view of an account, fetched fresh for
// every validation so decisions never run on stale collateral figures.
type PortfolioSnapshot struct {
	UserID          string  `json:"user_id"`
	FreeCollateral  float64 `json:"free_collateral"`
	TotalNotional   float64 `json:"total_notional"`
	AccountLeverage float64 `json:"account_leverage"`
}

// RiskLimits are per-user caps owned by the user-settings collaborator.
// Read-only input to the engine.
type RiskLimits struct {
	UserID             string  `json:"user_id"`
	MaxLeverage        float64 `json:"max_leverage"`
	MaxAccountLeverage float64 `json:"max_account_leverage"`
	PositionSizePct    float64 `json:"position_size_pct"` // fraction of free collateral per position
	TakeProfitPct      float64 `json:"take_profit_pct"`
	StopLossPct        float64 `json:"stop_loss_pct"`
	AutoTradeEnabled   bool    `json:"auto_trade_enabled"`
}

// DefaultLimits returns conservative limits applied when the settings
// collaborator has nothing stored for a user.
func DefaultLimits(userID string) RiskLimits {
	return RiskLimits{
		UserID:             userID,
		MaxLeverage:        10.0,
		MaxAccountLeverage: 5.0,
		PositionSizePct:    0.5,
		TakeProfitPct:      0.10,
		StopLossPct:        0.05,
		AutoTradeEnabled:   false,
	}
}
