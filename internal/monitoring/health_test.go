package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthChecker) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return rec.Code, status
}

func TestHealthHealthyWithLiveVenue(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.SetVenueHealth("bybit", true)
	h.RecordSweep()

	code, status := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.Venues["bybit"])
}

func TestHealthDegradedWhenAllVenuesDown(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.SetVenueHealth("bybit", false)
	h.SetVenueHealth("alpaca", false)

	code, status := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", status.Status)
}

func TestHealthUnhealthyOnRecordedError(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.SetVenueHealth("bybit", true)
	h.RecordError("api server: listen tcp :8080: address already in use")

	code, status := serveHealth(t, h)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "unhealthy", status.Status)
	require.Len(t, status.Errors, 1)
}
