package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestRecordAndListRecent(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	first := Record{
		UserID: "user-1", Market: "BTCUSDT", Side: "buy",
		Size: 0.5, FillPrice: 50000, Leverage: 3,
		OrderID: "o-1", Venue: "bybit", Source: SourceUser,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, rec.Record(ctx, first))

	second := Record{
		UserID: "user-1", Market: "BTCUSDT", Side: "sell",
		Size: 0.5, FillPrice: 57500, Leverage: 3, ReduceOnly: true,
		OrderID: "o-2", Venue: "bybit", Source: SourceMonitor,
		Reason:    "take_profit",
		CreatedAt: time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC),
	}
	require.NoError(t, rec.Record(ctx, second))

	records, err := rec.ListRecent(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Most recent first.
	assert.Equal(t, "o-2", records[0].OrderID)
	assert.True(t, records[0].ReduceOnly)
	assert.Equal(t, SourceMonitor, records[0].Source)
	assert.Equal(t, "take_profit", records[0].Reason)
	assert.Equal(t, second.CreatedAt, records[0].CreatedAt)

	assert.Equal(t, "o-1", records[1].OrderID)
	assert.False(t, records[1].ReduceOnly)
	assert.Equal(t, 50000.0, records[1].FillPrice)
}

func TestListRecentScopedToUser(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, Record{
		UserID: "user-1", Market: "BTCUSDT", Side: "buy",
		Size: 1, FillPrice: 50000, Leverage: 1,
		OrderID: "o-1", Venue: "sim", Source: SourceUser,
	}))
	require.NoError(t, rec.Record(ctx, Record{
		UserID: "user-2", Market: "ETHUSDT", Side: "buy",
		Size: 2, FillPrice: 3000, Leverage: 1,
		OrderID: "o-2", Venue: "sim", Source: SourceUser,
	}))

	records, err := rec.ListRecent(ctx, "user-2", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ETHUSDT", records[0].Market)
}

func TestRecordFillsMissingTimestamp(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, Record{
		UserID: "user-1", Market: "BTCUSDT", Side: "buy",
		Size: 1, FillPrice: 50000, Leverage: 1,
		OrderID: "o-1", Venue: "sim", Source: SourceUser,
	}))

	records, err := rec.ListRecent(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, time.Now().UTC(), records[0].CreatedAt, time.Minute)
}

func TestListRecentLimit(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Record(ctx, Record{
			UserID: "user-1", Market: "BTCUSDT", Side: "buy",
			Size: 1, FillPrice: 50000, Leverage: 1,
			OrderID: "o", Venue: "sim", Source: SourceUser,
		}))
	}

	records, err := rec.ListRecent(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
