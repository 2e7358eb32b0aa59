package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cryptopilot/trade-core/internal/history"
)

// CSVReporter writes trade history as CSV.
type CSVReporter struct{}

// NewCSVReporter creates a new CSV reporter
func NewCSVReporter() *CSVReporter {
	return &CSVReporter{}
}

// WriteHistoryCSV writes trade history to a CSV file. Paths ending in
// .xlsx are delegated to the Excel writer.
func (r *CSVReporter) WriteHistoryCSV(records []history.Record, path string) error {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewExcelReporter().WriteHistoryXLSX(records, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"ID",
		"Timestamp",
		"User",
		"Market",
		"Side",
		"Size",
		"Fill_Price",
		"Notional",
		"Leverage",
		"Reduce_Only",
		"Venue",
		"Source",
		"Reason",
	}); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.UserID,
			rec.Market,
			rec.Side,
			strconv.FormatFloat(rec.Size, 'f', -1, 64),
			fmt.Sprintf("%.2f", rec.FillPrice),
			fmt.Sprintf("%.2f", rec.Size*rec.FillPrice),
			fmt.Sprintf("%.1f", rec.Leverage),
			strconv.FormatBool(rec.ReduceOnly),
			rec.Venue,
			string(rec.Source),
			rec.Reason,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}
