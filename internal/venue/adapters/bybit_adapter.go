package adapters

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/venue"
	"github.com/cryptopilot/trade-core/internal/venue/bybit"
)

const bybitName = "bybit"

// Compile-time interface check.
var _ venue.Adapter = (*BybitAdapter)(nil)

// BybitAdapter exposes a Bybit unified trading account as a venue.
// Leveraged intents trade linear perpetuals, spot intents trade the
// spot book of the same account.
type BybitAdapter struct {
	client *bybit.Client
}

// NewBybitAdapter creates a Bybit venue adapter
func NewBybitAdapter(config bybit.Config) (*BybitAdapter, error) {
	if config.APIKey == "" || config.APISecret == "" {
		return nil, traderr.New(traderr.KindCredentials, bybitName, "NewBybitAdapter",
			"bybit API credentials are required")
	}
	return &BybitAdapter{client: bybit.NewClient(config)}, nil
}

func (a *BybitAdapter) Name() string { return bybitName }

func (a *BybitAdapter) Capabilities() []venue.Capability {
	return []venue.Capability{venue.CapabilitySpot, venue.CapabilityLeveraged}
}

// HealthCheck probes a lightweight public endpoint.
func (a *BybitAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.client.GetLatestPrice(ctx, "linear", "BTCUSDT")
	if err != nil {
		return traderr.Venue(bybitName, "HealthCheck", err)
	}
	return nil
}

func (a *BybitAdapter) Quote(ctx context.Context, req venue.QuoteRequest) (*venue.Quote, error) {
	category := categoryFor(req.Leverage)

	var price float64
	err := a.client.Retry(ctx, func() error {
		var perr error
		price, perr = a.client.GetLatestPrice(ctx, category, req.Market)
		return perr
	})
	if err != nil {
		return nil, traderr.Venue(bybitName, "Quote", err)
	}

	return &venue.Quote{
		Venue:          bybitName,
		Market:         req.Market,
		Price:          price,
		RequiredMargin: risk.RequiredMargin(req.Size, price, req.Leverage),
	}, nil
}

// Execute places a market order. Not retried: a timed-out placement
// may still have filled at the venue.
func (a *BybitAdapter) Execute(ctx context.Context, req venue.ExecuteRequest) (*venue.Execution, error) {
	category := categoryFor(req.Leverage)

	if category == "linear" && !req.ReduceOnly {
		if err := a.client.SetLeverage(ctx, req.Market, req.Leverage); err != nil {
			// Bybit rejects a no-op leverage change; an actual auth or
			// symbol problem will surface on the order itself.
			log.Printf("bybit: set leverage %s %.1fx: %v", req.Market, req.Leverage, err)
		}
	}

	params := bybit.PlaceOrderParams{
		Category:   category,
		Symbol:     req.Market,
		Side:       orderSideFor(req.Side),
		OrderType:  bybit.OrderType(req.OrderType),
		Qty:        req.Size,
		ReduceOnly: req.ReduceOnly,
	}
	if req.OrderType == venue.OrderTypeLimit {
		params.Price = req.LimitPrice
	}

	order, err := a.client.PlaceOrder(ctx, params)
	if err != nil {
		if bybit.IsInsufficientBalance(err) {
			return nil, traderr.Validation(bybitName, "Execute",
				risk.RuleInsufficientCollateral, "venue rejected order for insufficient balance")
		}
		return nil, traderr.Venue(bybitName, "Execute", err)
	}

	fill := fillPrice(order)
	if fill <= 0 {
		if fill, err = a.client.GetLatestPrice(ctx, category, req.Market); err != nil {
			return nil, traderr.Venue(bybitName, "Execute",
				fmt.Errorf("order %s placed but fill price unavailable: %w", order.OrderID, err))
		}
	}

	return &venue.Execution{
		Venue:     bybitName,
		OrderID:   order.OrderID,
		Market:    req.Market,
		FillPrice: fill,
		Size:      req.Size,
		Timestamp: orderTime(order),
	}, nil
}

// Close shrinks a derivatives position with a reduce-only market
// order on the opposite side.
func (a *BybitAdapter) Close(ctx context.Context, req venue.CloseRequest) (*venue.CloseResult, error) {
	positions, err := a.client.GetPositions(ctx, req.Market)
	if err != nil {
		return nil, traderr.Venue(bybitName, "Close", err)
	}

	var target *bybit.PositionInfo
	for i := range positions {
		if positionID(positions[i]) == req.PositionID {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return nil, traderr.Venue(bybitName, "Close",
			fmt.Errorf("position %s not found", req.PositionID))
	}

	pct := req.Percentage
	if pct <= 0 || pct > 100 {
		pct = 100
	}
	size := parseSize(target.Size)
	closeQty := size * pct / 100

	side := bybit.OrderSideSell
	if strings.EqualFold(target.Side, "Sell") {
		side = bybit.OrderSideBuy
	}

	order, err := a.client.PlaceOrder(ctx, bybit.PlaceOrderParams{
		Category:   "linear",
		Symbol:     target.Symbol,
		Side:       side,
		OrderType:  bybit.OrderTypeMarket,
		Qty:        closeQty,
		ReduceOnly: true,
	})
	if err != nil {
		return nil, traderr.Venue(bybitName, "Close", err)
	}

	fill := fillPrice(order)
	if fill <= 0 {
		fill = parseSize(target.MarkPrice)
	}

	return &venue.CloseResult{
		Venue:      bybitName,
		OrderID:    order.OrderID,
		ClosedSize: closeQty,
		FillPrice:  fill,
		Timestamp:  orderTime(order),
	}, nil
}

func (a *BybitAdapter) GetPositions(ctx context.Context, userID string) ([]risk.Position, error) {
	var infos []bybit.PositionInfo
	err := a.client.Retry(ctx, func() error {
		var perr error
		infos, perr = a.client.GetPositions(ctx, "")
		return perr
	})
	if err != nil {
		return nil, traderr.Venue(bybitName, "GetPositions", err)
	}

	var out []risk.Position
	for _, info := range infos {
		size := parseSize(info.Size)
		if size <= 0 {
			continue
		}
		side := risk.SideLong
		if strings.EqualFold(info.Side, "Sell") {
			side = risk.SideShort
		}
		leverage := parseSize(info.Leverage)
		if leverage < 1 {
			leverage = 1
		}
		entry := parseSize(info.EntryPrice)
		mark := parseSize(info.MarkPrice)
		margin := parseSize(info.PositionIM)
		out = append(out, risk.Position{
			ID:               positionID(info),
			UserID:           userID,
			Market:           info.Symbol,
			Side:             side,
			Size:             size,
			EntryPrice:       entry,
			MarkPrice:        mark,
			Leverage:         leverage,
			LiquidationPrice: parseSize(info.LiqPrice),
			MarginRatio:      risk.MarginRatio(margin, size, mark),
			UnrealizedPnL:    parseSize(info.UnrealisedPnl),
			OpenedAt:         info.CreatedTime,
			Status:           risk.StatusOpen,
			Venue:            bybitName,
		})
	}
	return out, nil
}

func (a *BybitAdapter) GetPortfolio(ctx context.Context, userID string) (*risk.PortfolioSnapshot, error) {
	var wallet *bybit.WalletBalance
	err := a.client.Retry(ctx, func() error {
		var werr error
		wallet, werr = a.client.GetWalletBalance(ctx)
		return werr
	})
	if err != nil {
		if bybit.IsAuthError(err) {
			return nil, traderr.New(traderr.KindCredentials, bybitName, "GetPortfolio", err.Error())
		}
		return nil, traderr.Venue(bybitName, "GetPortfolio", err)
	}

	positions, err := a.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	var notional float64
	for _, p := range positions {
		notional += p.Notional()
	}

	snapshot := &risk.PortfolioSnapshot{
		UserID:         userID,
		FreeCollateral: wallet.TotalAvailableBalance,
		TotalNotional:  notional,
	}
	if wallet.TotalInitialMargin > 0 {
		snapshot.AccountLeverage = notional / wallet.TotalInitialMargin
	}
	return snapshot, nil
}

// positionID derives a stable identifier for a Bybit position. Bybit
// keys positions by symbol and side, not by a venue-assigned ID.
func positionID(info bybit.PositionInfo) string {
	return fmt.Sprintf("bybit:%s:%s", info.Symbol, strings.ToLower(info.Side))
}

func categoryFor(leverage float64) string {
	if leverage > 1.0 {
		return "linear"
	}
	return "spot"
}

func orderSideFor(action risk.TradeAction) bybit.OrderSide {
	if action == risk.ActionSell {
		return bybit.OrderSideSell
	}
	return bybit.OrderSideBuy
}

func fillPrice(order *bybit.Order) float64 {
	if p := parseSize(order.AvgPrice); p > 0 {
		return p
	}
	return parseSize(order.Price)
}

func orderTime(order *bybit.Order) time.Time {
	if !order.CreatedTime.IsZero() {
		return order.CreatedTime
	}
	return time.Now().UTC()
}
