package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/cryptopilot/trade-core/internal/history"
)

// ExcelReporter writes trade history workbooks.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	BaseStyle     int
	OpenStyle     int
	CloseStyle    int
	SummaryStyle  int
}

// WriteHistoryXLSX writes trade history to an Excel workbook with a
// per-trade sheet and a per-market summary sheet.
func (r *ExcelReporter) WriteHistoryXLSX(records []history.Record, path string) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Summary"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(summarySheet)

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeTradesSheet(fx, tradesSheet, records, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, records, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - Dark blue-gray background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Currency style (right aligned, $ format)
	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Base style (light borders)
	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Open style (light blue background for opening trades)
	styles.OpenStyle, err = fx.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Close style (light green background for reduce-only trades)
	styles.CloseStyle, err = fx.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"E6FFE6"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	// Summary header style (blue background)
	styles.SummaryStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"4472C4"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 2},
			{Type: "right", Color: "000000", Style: 2},
			{Type: "top", Color: "000000", Style: 2},
			{Type: "bottom", Color: "000000", Style: 2},
		},
	})
	if err != nil {
		return styles, err
	}

	return styles, nil
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, records []history.Record, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 8)  // ID
	fx.SetColWidth(sheet, "B", "B", 18) // Timestamp
	fx.SetColWidth(sheet, "C", "C", 14) // User
	fx.SetColWidth(sheet, "D", "D", 12) // Market
	fx.SetColWidth(sheet, "E", "E", 8)  // Side
	fx.SetColWidth(sheet, "F", "F", 12) // Size
	fx.SetColWidth(sheet, "G", "G", 12) // Fill Price
	fx.SetColWidth(sheet, "H", "H", 14) // Notional
	fx.SetColWidth(sheet, "I", "I", 10) // Leverage
	fx.SetColWidth(sheet, "J", "J", 10) // Venue
	fx.SetColWidth(sheet, "K", "K", 10) // Source
	fx.SetColWidth(sheet, "L", "L", 20) // Reason

	headers := []string{
		"ID", "Timestamp", "User", "Market", "Side", "Size",
		"Fill Price", "Notional", "Leverage", "Venue", "Source", "Reason",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	for i, rec := range records {
		row := i + 2
		values := []interface{}{
			rec.ID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.UserID,
			rec.Market,
			rec.Side,
			rec.Size,
			rec.FillPrice,
			rec.Size * rec.FillPrice,
			fmt.Sprintf("%.1fx", rec.Leverage),
			rec.Venue,
			string(rec.Source),
			rec.Reason,
		}

		rowStyle := styles.OpenStyle
		if rec.ReduceOnly {
			rowStyle = styles.CloseStyle
		}

		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
			switch col {
			case 6, 7: // Fill Price, Notional
				fx.SetCellStyle(sheet, cell, cell, styles.CurrencyStyle)
			default:
				fx.SetCellStyle(sheet, cell, cell, rowStyle)
			}
		}
	}

	return nil
}

type marketSummary struct {
	Market        string
	Trades        int
	OpenNotional  float64
	CloseNotional float64
	MonitorCloses int
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, records []history.Record, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 12)
	fx.SetColWidth(sheet, "B", "E", 16)

	headers := []string{"Market", "Trades", "Opened Notional", "Closed Notional", "Auto Closes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.SummaryStyle)
	}

	summaries := make(map[string]*marketSummary)
	var order []string
	for _, rec := range records {
		s, ok := summaries[rec.Market]
		if !ok {
			s = &marketSummary{Market: rec.Market}
			summaries[rec.Market] = s
			order = append(order, rec.Market)
		}
		s.Trades++
		notional := rec.Size * rec.FillPrice
		if rec.ReduceOnly {
			s.CloseNotional += notional
			if rec.Source == history.SourceMonitor {
				s.MonitorCloses++
			}
		} else {
			s.OpenNotional += notional
		}
	}

	for i, market := range order {
		s := summaries[market]
		row := i + 2
		values := []interface{}{s.Market, s.Trades, s.OpenNotional, s.CloseNotional, s.MonitorCloses}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
			switch col {
			case 2, 3:
				fx.SetCellStyle(sheet, cell, cell, styles.CurrencyStyle)
			default:
				fx.SetCellStyle(sheet, cell, cell, styles.BaseStyle)
			}
		}
	}

	return nil
}
