package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Recorder = (*SQLiteRecorder)(nil)

// SQLiteRecorder persists trade records to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT    NOT NULL,
	market      TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	size        REAL    NOT NULL,
	fill_price  REAL    NOT NULL,
	leverage    REAL    NOT NULL,
	reduce_only INTEGER NOT NULL,
	order_id    TEXT    NOT NULL,
	venue       TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	reason      TEXT    NOT NULL DEFAULT '',
	created_at  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_history_user ON trade_history(user_id, created_at);
`

// NewSQLiteRecorder opens (or creates) the database at dbPath and
// ensures the schema exists.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trade history schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

// Record appends one executed trade or monitor action.
func (s *SQLiteRecorder) Record(ctx context.Context, r Record) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history
			(user_id, market, side, size, fill_price, leverage, reduce_only, order_id, venue, source, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Market, r.Side, r.Size, r.FillPrice, r.Leverage,
		boolToInt(r.ReduceOnly), r.OrderID, r.Venue, string(r.Source), r.Reason,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// ListRecent returns the newest records for a user, most recent first.
func (s *SQLiteRecorder) ListRecent(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, market, side, size, fill_price, leverage, reduce_only, order_id, venue, source, reason, created_at
		FROM trade_history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var reduceOnly int
		var source, createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Market, &r.Side, &r.Size, &r.FillPrice,
			&r.Leverage, &reduceOnly, &r.OrderID, &r.Venue, &source, &r.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}
		r.ReduceOnly = reduceOnly != 0
		r.Source = Source(source)
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			r.CreatedAt = ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
