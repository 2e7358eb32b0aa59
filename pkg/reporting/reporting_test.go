package reporting

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cryptopilot/trade-core/internal/history"
)

func sampleRecords() []history.Record {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	return []history.Record{
		{
			ID: 1, UserID: "user-1", Market: "BTCUSDT", Side: "buy",
			Size: 0.5, FillPrice: 50000, Leverage: 3,
			OrderID: "o-1", Venue: "bybit", Source: history.SourceUser,
			CreatedAt: now,
		},
		{
			ID: 2, UserID: "user-1", Market: "BTCUSDT", Side: "sell",
			Size: 0.5, FillPrice: 57500, Leverage: 3, ReduceOnly: true,
			OrderID: "o-2", Venue: "bybit", Source: history.SourceMonitor,
			Reason: "take_profit", CreatedAt: now.Add(2 * time.Hour),
		},
		{
			ID: 3, UserID: "user-2", Market: "ETHUSDT", Side: "buy",
			Size: 2, FillPrice: 3000, Leverage: 1,
			OrderID: "o-3", Venue: "alpaca", Source: history.SourceUser,
			CreatedAt: now.Add(3 * time.Hour),
		},
	}
}

func TestWriteHistoryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report", "trades.xlsx")

	err := NewExcelReporter().WriteHistoryXLSX(sampleRecords(), path)
	require.NoError(t, err)

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.ElementsMatch(t, []string{"Trades", "Summary"}, fx.GetSheetList())

	header, err := fx.GetCellValue("Trades", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	market, err := fx.GetCellValue("Trades", "D2")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", market)

	// Summary has one row per market.
	summaryMarket, err := fx.GetCellValue("Summary", "A3")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", summaryMarket)
}

func TestWriteHistoryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	err := NewCSVReporter().WriteHistoryCSV(sampleRecords(), path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "take_profit", rows[2][12])
}

func TestWriteHistoryCSVDelegatesToExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.xlsx")

	err := NewCSVReporter().WriteHistoryCSV(sampleRecords(), path)
	require.NoError(t, err)

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()
	assert.Contains(t, fx.GetSheetList(), "Trades")
}
