package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
)

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name     string
		side     PositionSide
		entry    float64
		leverage float64
		want     float64
	}{
		{"long 4x at 100", SideLong, 100, 4, 75},
		{"short 4x at 100", SideShort, 100, 4, 125},
		{"long 10x at 50000", SideLong, 50000, 10, 45000},
		{"short 2x at 2000", SideShort, 2000, 2, 3000},
		{"spot has no liquidation", SideHolding, 100, 1, 0},
		{"zero entry", SideLong, 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiquidationPrice(tt.side, tt.entry, tt.leverage)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("LiquidationPrice() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestSafePositionSize(t *testing.T) {
	// riskFactor = min(1, 3/5) = 0.6; maxSize = 1000*5*0.6/10 = 300;
	// safe = 300*0.8 = 240.
	got := SafePositionSize(1000, 5, 10)
	assert.InDelta(t, 240.0, got, 1e-9)

	// Leverage at or below 3x keeps the full risk factor.
	got = SafePositionSize(1000, 2, 10)
	assert.InDelta(t, 1000*2*1.0/10*0.8, got, 1e-9)

	// Higher leverage shrinks the factor further.
	got = SafePositionSize(1000, 10, 10)
	assert.InDelta(t, 1000*10*0.3/10*0.8, got, 1e-9)

	assert.Equal(t, 0.0, SafePositionSize(0, 5, 10))
	assert.Equal(t, 0.0, SafePositionSize(1000, 5, 0))
}

func TestRequiredMargin(t *testing.T) {
	assert.InDelta(t, 250.0, RequiredMargin(0.1, 25000, 10), 1e-9)
	// Spot requires the full notional.
	assert.InDelta(t, 2500.0, RequiredMargin(0.1, 25000, 1), 1e-9)
	// Sub-1 leverage is clamped to spot.
	assert.InDelta(t, 2500.0, RequiredMargin(0.1, 25000, 0), 1e-9)
}

func TestValidate_InsufficientCollateral(t *testing.T) {
	engine := NewEngine(10, 0.025)
	limits := DefaultLimits("u1")
	snapshot := PortfolioSnapshot{UserID: "u1", FreeCollateral: 100}

	intent := TradeIntent{
		UserID:   "u1",
		Action:   ActionBuy,
		Market:   "BTCUSDT",
		Amount:   0.1,
		Leverage: 2, // margin = 0.1*30000/2 = 1500 > 100
	}

	err := engine.Validate(intent, 30000, snapshot, limits)
	assert.True(t, traderr.IsValidation(err))
	assert.Equal(t, RuleInsufficientCollateral, traderr.ViolatedRule(err))
}

func TestValidate_LeverageCaps(t *testing.T) {
	engine := NewEngine(10, 0.025)
	limits := DefaultLimits("u1")
	limits.MaxLeverage = 5

	intent := TradeIntent{UserID: "u1", Action: ActionBuy, Market: "ETHUSDT", Amount: 1, Leverage: 20}
	err := engine.Validate(intent, 2000, PortfolioSnapshot{FreeCollateral: 10000}, limits)
	assert.Equal(t, RuleLeverageExceedsCap, traderr.ViolatedRule(err))

	// Account-wide leverage: existing 2x book plus a large new order.
	limits.MaxLeverage = 10
	limits.MaxAccountLeverage = 3
	limits.PositionSizePct = 1.0
	snapshot := PortfolioSnapshot{
		FreeCollateral:  1000,
		TotalNotional:   4000,
		AccountLeverage: 2,
	}
	intent = TradeIntent{UserID: "u1", Action: ActionBuy, Market: "ETHUSDT", Amount: 4, Leverage: 10}
	err = engine.Validate(intent, 2000, snapshot, limits)
	assert.Equal(t, RuleAccountLeverageCap, traderr.ViolatedRule(err))
}

func TestValidate_AmountBelowMinimum(t *testing.T) {
	engine := NewEngine(25, 0.025)
	intent := TradeIntent{UserID: "u1", Action: ActionBuy, Market: "SOLUSDT", Amount: 0.1, Leverage: 1}
	err := engine.Validate(intent, 100, PortfolioSnapshot{FreeCollateral: 5000}, DefaultLimits("u1"))
	assert.Equal(t, RuleAmountBelowMinimum, traderr.ViolatedRule(err))
}

func TestValidate_AcceptsSaneIntent(t *testing.T) {
	engine := NewEngine(10, 0.025)
	intent := TradeIntent{UserID: "u1", Action: ActionBuy, Market: "BTCUSDT", Amount: 0.01, Leverage: 2}
	err := engine.Validate(intent, 30000, PortfolioSnapshot{FreeCollateral: 1000}, DefaultLimits("u1"))
	assert.NoError(t, err)
}

func TestShouldTakeProfit_SignAware(t *testing.T) {
	limits := RiskLimits{TakeProfitPct: 0.10, StopLossPct: 0.05}

	long := Position{Side: SideLong, Status: StatusOpen, EntryPrice: 100, MarkPrice: 111}
	assert.True(t, ShouldTakeProfit(long, limits))

	long.MarkPrice = 105
	assert.False(t, ShouldTakeProfit(long, limits))

	// A short takes profit only when price falls below target.
	short := Position{Side: SideShort, Status: StatusOpen, EntryPrice: 100, MarkPrice: 89}
	assert.True(t, ShouldTakeProfit(short, limits))

	short.MarkPrice = 111
	assert.False(t, ShouldTakeProfit(short, limits))
}

func TestShouldStopLoss_SignAware(t *testing.T) {
	limits := RiskLimits{TakeProfitPct: 0.10, StopLossPct: 0.05}

	long := Position{Side: SideLong, Status: StatusOpen, EntryPrice: 100, MarkPrice: 94}
	assert.True(t, ShouldStopLoss(long, limits))

	short := Position{Side: SideShort, Status: StatusOpen, EntryPrice: 100, MarkPrice: 106}
	assert.True(t, ShouldStopLoss(short, limits))

	short.MarkPrice = 94
	assert.False(t, ShouldStopLoss(short, limits))
}

func TestNearLiquidation(t *testing.T) {
	engine := NewEngine(10, 0.025)

	p := Position{
		Side:       SideLong,
		Status:     StatusOpen,
		EntryPrice: 100,
		Leverage:   4,
	}
	p.LiquidationPrice = LiquidationPrice(p.Side, p.EntryPrice, p.Leverage) // 75

	p.MarkPrice = 95
	assert.False(t, engine.NearLiquidation(p))

	p.MarkPrice = 77 // 2% of entry above liquidation
	assert.True(t, engine.NearLiquidation(p))

	p.MarkPrice = 70 // past liquidation
	assert.True(t, engine.NearLiquidation(p))

	// Spot never reports proximity.
	spot := Position{Side: SideHolding, Status: StatusOpen, EntryPrice: 100, MarkPrice: 1, Leverage: 1}
	assert.False(t, engine.NearLiquidation(spot))
}
