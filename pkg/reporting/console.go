package reporting

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/safety"
)

// ConsoleReporter renders trade history and venue status as terminal tables.
type ConsoleReporter struct{}

// NewConsoleReporter creates a new console reporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintHistory renders recent trade records as a table.
func (r *ConsoleReporter) PrintHistory(records []history.Record) {
	if len(records) == 0 {
		fmt.Println("No trade history found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADE HISTORY")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Time", "User", "Market", "Side", "Size", "Fill", "Lev", "Venue", "Source", "Reason"})
	for _, rec := range records {
		side := rec.Side
		if rec.ReduceOnly {
			side = side + " (close)"
		}
		t.AppendRow(table.Row{
			rec.CreatedAt.Format("01-02 15:04:05"),
			rec.UserID,
			rec.Market,
			side,
			fmt.Sprintf("%.6f", rec.Size),
			fmt.Sprintf("$%.2f", rec.FillPrice),
			fmt.Sprintf("%.0fx", rec.Leverage),
			rec.Venue,
			string(rec.Source),
			rec.Reason,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}

// PrintVenueStatus renders venue health and breaker state.
func (r *ConsoleReporter) PrintVenueStatus(health map[string]error, breakers []safety.BreakerStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("VENUE STATUS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Venue", "Health", "Breaker", "Failures", "Last Failure"})

	for _, b := range breakers {
		healthStr := "✅ healthy"
		if err, ok := health[b.Name]; ok && err != nil {
			healthStr = fmt.Sprintf("❌ %v", err)
		}
		lastFailure := "-"
		if !b.LastFailure.IsZero() {
			lastFailure = b.LastFailure.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			b.Name,
			healthStr,
			b.State.String(),
			b.Failures,
			lastFailure,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 8, Align: text.AlignLeft},
		{Number: 2, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
