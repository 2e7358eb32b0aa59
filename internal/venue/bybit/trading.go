package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// Order represents a placed order as confirmed by the venue
type Order struct {
	OrderID     string    `json:"orderId"`
	OrderLinkID string    `json:"orderLinkId"`
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	OrderType   OrderType `json:"orderType"`
	Qty         string    `json:"qty"`
	Price       string    `json:"price"`
	AvgPrice    string    `json:"avgPrice"`
	CumExecQty  string    `json:"cumExecQty"`
	OrderStatus string    `json:"orderStatus"`
	CreatedTime time.Time `json:"createdTime"`
}

// PlaceOrderParams holds parameters for placing an order
type PlaceOrderParams struct {
	Category   string    // "spot" or "linear"
	Symbol     string    // trading pair symbol
	Side       OrderSide // Buy or Sell
	OrderType  OrderType // Market or Limit
	Qty        float64   // order quantity in base units
	Price      float64   // limit orders only
	ReduceOnly bool      // close existing exposure only
}

// PlaceOrder places an order and returns the venue's confirmation
func (c *Client) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Order, error) {
	if params.Category == "" {
		params.Category = "linear"
	}
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if params.Side == "" {
		return nil, fmt.Errorf("side is required")
	}
	if params.Qty <= 0 {
		return nil, fmt.Errorf("qty must be positive")
	}
	if params.OrderType == "" {
		params.OrderType = OrderTypeMarket
	}
	if params.OrderType == OrderTypeLimit && params.Price <= 0 {
		return nil, fmt.Errorf("price is required for limit orders")
	}

	apiParams := map[string]interface{}{
		"category":  params.Category,
		"symbol":    params.Symbol,
		"side":      string(params.Side),
		"orderType": string(params.OrderType),
		"qty":       formatQty(params.Qty),
	}
	if params.OrderType == OrderTypeLimit {
		apiParams["price"] = formatQty(params.Price)
		apiParams["timeInForce"] = "GTC"
	}
	if params.ReduceOnly {
		apiParams["reduceOnly"] = true
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order, err := c.parseOrderResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return order, nil
}

// PositionInfo represents a derivatives position
type PositionInfo struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Size          string    `json:"size"`
	PositionValue string    `json:"positionValue"`
	EntryPrice    string    `json:"entryPrice"`
	MarkPrice     string    `json:"markPrice"`
	LiqPrice      string    `json:"liqPrice"`
	UnrealisedPnl string    `json:"unrealisedPnl"`
	PositionIM    string    `json:"positionIM"`
	Leverage      string    `json:"leverage"`
	CreatedTime   time.Time `json:"createdTime"`
	UpdatedTime   time.Time `json:"updatedTime"`
}

// GetPositions retrieves open derivatives positions. With an empty
// symbol all linear positions settled in USDT are returned.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	params := map[string]interface{}{
		"category": "linear",
	}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = "USDT"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions, err := c.parsePositionsResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}
	return positions, nil
}

// SetLeverage sets the leverage for a symbol before opening a position
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := formatQty(leverage)
	params := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}

	_, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionLeverage(ctx)
	if err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	return nil
}

// parseOrderResponse parses the order placement API response
func (c *Client) parseOrderResponse(response interface{}) (*Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		OrderType   string `json:"orderType"`
		Qty         string `json:"qty"`
		Price       string `json:"price"`
		AvgPrice    string `json:"avgPrice"`
		CumExecQty  string `json:"cumExecQty"`
		OrderStatus string `json:"orderStatus"`
		CreatedTime string `json:"createdTime"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	return &Order{
		OrderID:     orderResult.OrderID,
		OrderLinkID: orderResult.OrderLinkID,
		Symbol:      orderResult.Symbol,
		Side:        OrderSide(orderResult.Side),
		OrderType:   OrderType(orderResult.OrderType),
		Qty:         orderResult.Qty,
		Price:       orderResult.Price,
		AvgPrice:    orderResult.AvgPrice,
		CumExecQty:  orderResult.CumExecQty,
		OrderStatus: orderResult.OrderStatus,
		CreatedTime: parseTimestamp(orderResult.CreatedTime),
	}, nil
}

// parsePositionsResponse parses the positions API response
func (c *Client) parsePositionsResponse(response interface{}) ([]PositionInfo, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var positionResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			PositionValue string `json:"positionValue"`
			EntryPrice    string `json:"entryPrice"`
			MarkPrice     string `json:"markPrice"`
			LiqPrice      string `json:"liqPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			PositionIM    string `json:"positionIM"`
			Leverage      string `json:"leverage"`
			CreatedTime   string `json:"createdTime"`
			UpdatedTime   string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &positionResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position result: %w", err)
	}

	var positions []PositionInfo
	for _, posData := range positionResult.List {
		positions = append(positions, PositionInfo{
			Symbol:        posData.Symbol,
			Side:          posData.Side,
			Size:          posData.Size,
			PositionValue: posData.PositionValue,
			EntryPrice:    posData.EntryPrice,
			MarkPrice:     posData.MarkPrice,
			LiqPrice:      posData.LiqPrice,
			UnrealisedPnl: posData.UnrealisedPnl,
			PositionIM:    posData.PositionIM,
			Leverage:      posData.Leverage,
			CreatedTime:   parseTimestamp(posData.CreatedTime),
			UpdatedTime:   parseTimestamp(posData.UpdatedTime),
		})
	}
	return positions, nil
}
