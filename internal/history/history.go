// Package history is the write-only trade log sink. Executed trades and
// monitor-triggered closes are appended for audit and reporting; nothing
// in the trade pipeline reads it back on the hot path.
package history

import (
	"context"
	"time"
)

// Source identifies who initiated a recorded action
type Source string

const (
	SourceUser    Source = "user"
	SourceMonitor Source = "monitor"
)

// Record is one executed trade or monitor action
type Record struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	FillPrice  float64   `json:"fill_price"`
	Leverage   float64   `json:"leverage"`
	ReduceOnly bool      `json:"reduce_only"`
	OrderID    string    `json:"order_id"`
	Venue      string    `json:"venue"`
	Source     Source    `json:"source"`
	Reason     string    `json:"reason,omitempty"` // monitor actions: take_profit, stop_loss, liquidation_risk
	CreatedAt  time.Time `json:"created_at"`
}

// Recorder is the sink interface consumed by the coordinator and the
// position monitor.
type Recorder interface {
	Record(ctx context.Context, r Record) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}

// Nop discards every record, for tests and minimal deployments.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) Record(context.Context, Record) error { return nil }
func (Nop) ListRecent(context.Context, string, int) ([]Record, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
