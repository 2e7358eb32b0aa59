package adapters

import (
	"context"
	"fmt"
	"strconv"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/venue"
)

const alpacaName = "alpaca"

// Compile-time interface check.
var _ venue.Adapter = (*AlpacaAdapter)(nil)

// AlpacaConfig holds credentials for the Alpaca trading API
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // paper or live endpoint
}

// AlpacaAdapter exposes an Alpaca brokerage account as a spot-only
// venue. Alpaca has no leveraged product here, so leveraged intents
// never route to it.
type AlpacaAdapter struct {
	trading    *alpacaapi.Client
	marketData *marketdata.Client
}

// NewAlpacaAdapter creates an Alpaca venue adapter
func NewAlpacaAdapter(config AlpacaConfig) (*AlpacaAdapter, error) {
	if config.APIKey == "" || config.APISecret == "" {
		return nil, traderr.New(traderr.KindCredentials, alpacaName, "NewAlpacaAdapter",
			"alpaca API credentials are required")
	}
	return &AlpacaAdapter{
		trading: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    config.APIKey,
			APISecret: config.APISecret,
			BaseURL:   config.BaseURL,
		}),
		marketData: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    config.APIKey,
			APISecret: config.APISecret,
		}),
	}, nil
}

func (a *AlpacaAdapter) Name() string { return alpacaName }

func (a *AlpacaAdapter) Capabilities() []venue.Capability {
	return []venue.Capability{venue.CapabilitySpot}
}

func (a *AlpacaAdapter) HealthCheck(ctx context.Context) error {
	if _, err := a.trading.GetClock(); err != nil {
		return traderr.Venue(alpacaName, "HealthCheck", err)
	}
	return nil
}

func (a *AlpacaAdapter) Quote(ctx context.Context, req venue.QuoteRequest) (*venue.Quote, error) {
	price, err := a.latestPrice(req.Market)
	if err != nil {
		return nil, traderr.Venue(alpacaName, "Quote", err)
	}
	return &venue.Quote{
		Venue:          alpacaName,
		Market:         req.Market,
		Price:          price,
		RequiredMargin: req.Size * price, // spot, full notional
	}, nil
}

func (a *AlpacaAdapter) Execute(ctx context.Context, req venue.ExecuteRequest) (*venue.Execution, error) {
	if req.Leverage > 1.0 {
		return nil, traderr.Validation(alpacaName, "Execute",
			risk.RuleLeverageExceedsCap, "alpaca venue is spot only")
	}

	qty := decimal.NewFromFloat(req.Size)
	side := alpacaapi.Buy
	if req.Side == risk.ActionSell {
		side = alpacaapi.Sell
	}
	orderType := alpacaapi.Market
	var limitPrice *decimal.Decimal
	if req.OrderType == venue.OrderTypeLimit {
		orderType = alpacaapi.Limit
		lp := decimal.NewFromFloat(req.LimitPrice)
		limitPrice = &lp
	}

	order, err := a.trading.PlaceOrder(alpacaapi.PlaceOrderRequest{
		Symbol:      req.Market,
		Qty:         &qty,
		Side:        side,
		Type:        orderType,
		LimitPrice:  limitPrice,
		TimeInForce: alpacaapi.Day,
	})
	if err != nil {
		return nil, traderr.Venue(alpacaName, "Execute", err)
	}

	fill := a.orderFillPrice(order, req.Market)
	return &venue.Execution{
		Venue:     alpacaName,
		OrderID:   order.ID,
		Market:    req.Market,
		FillPrice: fill,
		Size:      req.Size,
		Timestamp: order.CreatedAt,
	}, nil
}

func (a *AlpacaAdapter) Close(ctx context.Context, req venue.CloseRequest) (*venue.CloseResult, error) {
	symbol, err := alpacaSymbolFromID(req.PositionID)
	if err != nil {
		symbol = req.Market
	}

	pct := req.Percentage
	if pct <= 0 || pct > 100 {
		pct = 100
	}

	pos, err := a.trading.GetPosition(symbol)
	if err != nil {
		return nil, traderr.Venue(alpacaName, "Close", err)
	}
	closeQty := pos.Qty.Mul(decimal.NewFromFloat(pct / 100))

	order, err := a.trading.ClosePosition(symbol, alpacaapi.ClosePositionRequest{
		Qty: closeQty,
	})
	if err != nil {
		return nil, traderr.Venue(alpacaName, "Close", err)
	}

	return &venue.CloseResult{
		Venue:      alpacaName,
		OrderID:    order.ID,
		ClosedSize: closeQty.InexactFloat64(),
		FillPrice:  a.orderFillPrice(order, symbol),
		Timestamp:  order.CreatedAt,
	}, nil
}

func (a *AlpacaAdapter) GetPositions(ctx context.Context, userID string) ([]risk.Position, error) {
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, traderr.Venue(alpacaName, "GetPositions", err)
	}

	var out []risk.Position
	for _, p := range positions {
		size := p.Qty.InexactFloat64()
		if size <= 0 {
			continue
		}
		mark := p.AvgEntryPrice.InexactFloat64()
		if p.CurrentPrice != nil {
			mark = p.CurrentPrice.InexactFloat64()
		}
		var pnl float64
		if p.UnrealizedPL != nil {
			pnl = p.UnrealizedPL.InexactFloat64()
		}
		out = append(out, risk.Position{
			ID:            fmt.Sprintf("alpaca:%s", p.Symbol),
			UserID:        userID,
			Market:        p.Symbol,
			Side:          risk.SideHolding,
			Size:          size,
			EntryPrice:    p.AvgEntryPrice.InexactFloat64(),
			MarkPrice:     mark,
			Leverage:      1.0,
			UnrealizedPnL: pnl,
			Status:        risk.StatusOpen,
			Venue:         alpacaName,
		})
	}
	return out, nil
}

func (a *AlpacaAdapter) GetPortfolio(ctx context.Context, userID string) (*risk.PortfolioSnapshot, error) {
	account, err := a.trading.GetAccount()
	if err != nil {
		return nil, traderr.Venue(alpacaName, "GetPortfolio", err)
	}

	positions, err := a.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	var notional float64
	for _, p := range positions {
		notional += p.Notional()
	}

	return &risk.PortfolioSnapshot{
		UserID:         userID,
		FreeCollateral: account.Cash.InexactFloat64(),
		TotalNotional:  notional,
		// Spot account, exposure equals capital deployed.
		AccountLeverage: 1.0,
	}, nil
}

func (a *AlpacaAdapter) latestPrice(symbol string) (float64, error) {
	trade, err := a.marketData.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, err
	}
	if trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", symbol)
	}
	return trade.Price, nil
}

// orderFillPrice prefers the venue-reported average fill and falls
// back to the latest trade when the order has not settled yet.
func (a *AlpacaAdapter) orderFillPrice(order *alpacaapi.Order, symbol string) float64 {
	if order.FilledAvgPrice != nil && order.FilledAvgPrice.IsPositive() {
		return order.FilledAvgPrice.InexactFloat64()
	}
	if price, err := a.latestPrice(symbol); err == nil {
		return price
	}
	return 0
}

func alpacaSymbolFromID(positionID string) (string, error) {
	const prefix = "alpaca:"
	if len(positionID) > len(prefix) && positionID[:len(prefix)] == prefix {
		return positionID[len(prefix):], nil
	}
	return "", fmt.Errorf("not an alpaca position id: %q", positionID)
}

// parseSize parses a venue-reported numeric string, zero when absent
func parseSize(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
