package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker aggregates liveness signals from the venue layer and
// the position monitor and serves them as a JSON health endpoint.
type HealthChecker struct {
	mu         sync.RWMutex
	venues     map[string]bool
	lastSweep  time.Time
	sweepStale time.Duration
	errors     []string
}

type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Venues    map[string]bool `json:"venues"`
	LastSweep time.Time       `json:"last_sweep"`
	Uptime    string          `json:"uptime"`
	Errors    []string        `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker. sweepStale is how long the
// monitor may go without completing a sweep before health degrades.
func NewHealthChecker(sweepStale time.Duration) *HealthChecker {
	if sweepStale <= 0 {
		sweepStale = 5 * time.Minute
	}
	return &HealthChecker{
		venues:     make(map[string]bool),
		sweepStale: sweepStale,
		errors:     make([]string, 0),
	}
}

// SetVenueHealth records the latest liveness result for a venue.
func (h *HealthChecker) SetVenueHealth(venue string, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.venues[venue] = healthy
}

// RecordSweep marks the completion of a monitor sweep.
func (h *HealthChecker) RecordSweep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSweep = time.Now()
}

// RecordError appends a persistent error to the health report.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 20 {
		h.errors = h.errors[len(h.errors)-20:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK

	anyVenue := false
	for _, healthy := range h.venues {
		if healthy {
			anyVenue = true
			break
		}
	}
	if len(h.venues) > 0 && !anyVenue {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !h.lastSweep.IsZero() && time.Since(h.lastSweep) > h.sweepStale {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	venues := make(map[string]bool, len(h.venues))
	for name, healthy := range h.venues {
		venues[name] = healthy
	}

	health := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Venues:    venues,
		LastSweep: h.lastSweep,
		Uptime:    time.Since(startTime).String(),
		Errors:    h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
