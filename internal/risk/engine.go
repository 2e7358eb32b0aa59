package risk

import (
	"fmt"
	"math"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
)

// Validation rule names surfaced by Validate. The engine always reports
// which rule failed, never a generic rejection.
const (
	RuleInsufficientCollateral = "insufficient_collateral"
	RuleLeverageExceedsCap     = "leverage_exceeds_cap"
	RuleAccountLeverageCap     = "account_leverage_cap"
	RuleAmountBelowMinimum     = "amount_below_minimum"
	RulePositionSizeCap        = "position_size_cap"
	RuleInvalidIntent          = "invalid_intent"
)

// Sizing constants. The risk factor shrinks allowed exposure as leverage
// grows (3x leverage and below uses full factor), and the safety buffer
// keeps 20% of headroom unused. Changing either changes the de-risking
// policy for every account.
const (
	riskFactorNumerator = 3.0
	safetyBuffer        = 0.8
)

const component = "risk_engine"

// Engine is a pure computation layer: margin requirements, liquidation
// price, safe sizing and exit conditions. It holds configuration only,
// never mutable account state.
type Engine struct {
	// MinOrderNotional is the venue-wide minimum order value in quote
	// currency; intents below it fail validation.
	MinOrderNotional float64

	// LiquidationBuffer is the fractional distance from liquidation at
	// which the monitor treats a position as at-risk (0.025 = 2.5%).
	LiquidationBuffer float64
}

// NewEngine creates an engine with the given venue minimum and
// liquidation proximity buffer.
func NewEngine(minOrderNotional, liquidationBuffer float64) *Engine {
	if liquidationBuffer <= 0 {
		liquidationBuffer = 0.025
	}
	return &Engine{
		MinOrderNotional:  minOrderNotional,
		LiquidationBuffer: liquidationBuffer,
	}
}

// LiquidationPrice computes the price at which a leveraged position's
// margin is exhausted. Long: entry × (1 − 1/lev). Short: entry × (1 + 1/lev).
// Spot positions (leverage <= 1) have no liquidation price.
func LiquidationPrice(side PositionSide, entryPrice, leverage float64) float64 {
	if leverage <= 1.0 || entryPrice <= 0 {
		return 0
	}
	switch side {
	case SideShort:
		return entryPrice * (1 + 1/leverage)
	default:
		return entryPrice * (1 - 1/leverage)
	}
}

// RequiredMargin is the collateral needed to carry a position of the
// given notional at the given leverage.
func RequiredMargin(size, price, leverage float64) float64 {
	if leverage < 1.0 {
		leverage = 1.0
	}
	return size * price / leverage
}

// SafePositionSize returns the recommended position size in base units.
// riskFactor = min(1.0, 3.0/leverage) dampens sizing as leverage grows;
// the 0.8 buffer leaves 20% of the theoretical maximum unused.
func SafePositionSize(freeCollateral, leverage, price float64) float64 {
	if freeCollateral <= 0 || price <= 0 {
		return 0
	}
	if leverage < 1.0 {
		leverage = 1.0
	}
	riskFactor := math.Min(1.0, riskFactorNumerator/leverage)
	maxSize := freeCollateral * leverage * riskFactor / price
	return maxSize * safetyBuffer
}

// MarginRatio returns posted collateral relative to position notional.
func MarginRatio(collateral, size, price float64) float64 {
	notional := size * price
	if notional <= 0 {
		return 0
	}
	return collateral / notional
}

// Validate checks an intent against a fresh portfolio snapshot and the
// user's limits. amount is in base units, price is the current estimate.
// The returned error always names the violated rule.
func (e *Engine) Validate(intent TradeIntent, price float64, snapshot PortfolioSnapshot, limits RiskLimits) error {
	const op = "Validate"

	if intent.Market == "" || intent.Amount <= 0 || price <= 0 {
		return traderr.Validation(component, op, RuleInvalidIntent,
			"intent must carry a market, a positive amount and a positive price")
	}

	leverage := intent.Leverage
	if leverage < 1.0 {
		leverage = 1.0
	}

	notional := intent.Amount * price
	if notional < e.MinOrderNotional {
		return traderr.Validation(component, op, RuleAmountBelowMinimum,
			fmt.Sprintf("order notional %.2f below venue minimum %.2f", notional, e.MinOrderNotional))
	}

	if limits.MaxLeverage > 0 && leverage > limits.MaxLeverage {
		return traderr.Validation(component, op, RuleLeverageExceedsCap,
			fmt.Sprintf("leverage %.1fx exceeds per-position cap %.1fx", leverage, limits.MaxLeverage))
	}

	required := RequiredMargin(intent.Amount, price, leverage)
	if required > snapshot.FreeCollateral {
		return traderr.Validation(component, op, RuleInsufficientCollateral,
			fmt.Sprintf("required margin %.2f exceeds free collateral %.2f", required, snapshot.FreeCollateral))
	}

	if limits.PositionSizePct > 0 && required > snapshot.FreeCollateral*limits.PositionSizePct {
		return traderr.Validation(component, op, RulePositionSizeCap,
			fmt.Sprintf("margin %.2f exceeds %.0f%% of free collateral", required, limits.PositionSizePct*100))
	}

	if limits.MaxAccountLeverage > 0 {
		collateral := snapshot.FreeCollateral + snapshot.TotalNotional/math.Max(snapshot.AccountLeverage, 1.0)
		if collateral > 0 {
			resulting := (snapshot.TotalNotional + notional) / collateral
			if resulting > limits.MaxAccountLeverage {
				return traderr.Validation(component, op, RuleAccountLeverageCap,
					fmt.Sprintf("resulting account leverage %.2fx exceeds cap %.2fx", resulting, limits.MaxAccountLeverage))
			}
		}
	}

	return nil
}

// ShouldTakeProfit reports whether the position has reached its profit
// target. Comparisons are sign-aware: a short position takes profit when
// the price falls below target, never when it rises.
func ShouldTakeProfit(p Position, limits RiskLimits) bool {
	target := limits.TakeProfitPct
	if p.Status != StatusOpen || target <= 0 || p.EntryPrice <= 0 || p.MarkPrice <= 0 {
		return false
	}
	switch p.Side {
	case SideShort:
		return p.MarkPrice <= p.EntryPrice*(1-target)
	default:
		return p.MarkPrice >= p.EntryPrice*(1+target)
	}
}

// ShouldStopLoss reports whether the position has breached its loss
// threshold, with the same long/short sign awareness.
func ShouldStopLoss(p Position, limits RiskLimits) bool {
	threshold := limits.StopLossPct
	if p.Status != StatusOpen || threshold <= 0 || p.EntryPrice <= 0 || p.MarkPrice <= 0 {
		return false
	}
	switch p.Side {
	case SideShort:
		return p.MarkPrice >= p.EntryPrice*(1+threshold)
	default:
		return p.MarkPrice <= p.EntryPrice*(1-threshold)
	}
}

// LiquidationProximity returns how close the mark price is to the
// liquidation price as a fraction of entry price. 0 means at or past
// liquidation; larger is safer. Spot positions report +Inf.
func LiquidationProximity(p Position) float64 {
	if p.Leverage <= 1.0 || p.LiquidationPrice <= 0 || p.EntryPrice <= 0 {
		return math.Inf(1)
	}
	distance := p.MarkPrice - p.LiquidationPrice
	if p.Side == SideShort {
		distance = p.LiquidationPrice - p.MarkPrice
	}
	if distance <= 0 {
		return 0
	}
	return distance / p.EntryPrice
}

// NearLiquidation reports whether the position is inside the engine's
// configured liquidation buffer and should be force-reduced.
func (e *Engine) NearLiquidation(p Position) bool {
	return LiquidationProximity(p) <= e.LiquidationBuffer
}
