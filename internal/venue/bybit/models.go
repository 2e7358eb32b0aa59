package bybit

import (
	"strconv"
	"time"
)

func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	msec, _ := strconv.ParseInt(ts, 10, 64)
	return time.UnixMilli(msec)
}

// formatQty renders a quantity the way the Bybit API expects, without
// scientific notation
func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
