package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// WalletBalance summarizes the unified account's margin standing
type WalletBalance struct {
	TotalEquity           float64 `json:"totalEquity"`
	TotalAvailableBalance float64 `json:"totalAvailableBalance"`
	TotalInitialMargin    float64 `json:"totalInitialMargin"`
	TotalMarginBalance    float64 `json:"totalMarginBalance"`
	TotalPerpUPL          float64 `json:"totalPerpUPL"`
	AccountIMRate         float64 `json:"accountIMRate"`
}

// GetWalletBalance retrieves the unified account balance
func (c *Client) GetWalletBalance(ctx context.Context) (*WalletBalance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	balance, err := c.parseWalletResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet response: %w", err)
	}
	return balance, nil
}

func (c *Client) parseWalletResponse(response interface{}) (*WalletBalance, error) {
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

	var walletResult struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			TotalInitialMargin    string `json:"totalInitialMargin"`
			TotalMarginBalance    string `json:"totalMarginBalance"`
			TotalPerpUPL          string `json:"totalPerpUPL"`
			AccountIMRate         string `json:"accountIMRate"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}
	if len(walletResult.List) == 0 {
		return nil, fmt.Errorf("no account data found")
	}

	account := walletResult.List[0]
	return &WalletBalance{
		TotalEquity:           parseFloat64(account.TotalEquity),
		TotalAvailableBalance: parseFloat64(account.TotalAvailableBalance),
		TotalInitialMargin:    parseFloat64(account.TotalInitialMargin),
		TotalMarginBalance:    parseFloat64(account.TotalMarginBalance),
		TotalPerpUPL:          parseFloat64(account.TotalPerpUPL),
		AccountIMRate:         parseFloat64(account.AccountIMRate),
	}, nil
}
