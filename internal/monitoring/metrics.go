package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Two-phase execution metrics
	intentsPrepared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_intents_prepared_total",
			Help: "Total number of trade intents that passed validation",
		},
		[]string{"market", "side"},
	)

	confirmOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_confirm_outcomes_total",
			Help: "Confirm attempts by outcome",
		},
		[]string{"outcome"},
	)

	validationRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_validation_rejections_total",
			Help: "Intents rejected during Prepare, by violated rule",
		},
		[]string{"rule"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"market", "side"},
	)

	tradeNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_core_trade_notional",
			Help:    "Distribution of executed trade notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"market"},
	)

	// Venue metrics
	venueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_venue_errors_total",
			Help: "Failed venue calls by venue and operation",
		},
		[]string{"venue", "op"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trade_core_breaker_state",
			Help: "Circuit breaker state per venue (0 closed, 1 half-open, 2 open)",
		},
		[]string{"venue"},
	)

	// Monitor sweep metrics
	sweepPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trade_core_sweep_positions",
			Help: "Positions processed by the last monitor sweep",
		},
	)

	sweepActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_core_sweep_actions_total",
			Help: "Automatic closes taken by the monitor, by trigger",
		},
		[]string{"trigger"},
	)

	sweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trade_core_sweep_errors_total",
			Help: "Per-position evaluation failures during monitor sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(intentsPrepared)
	prometheus.MustRegister(confirmOutcomes)
	prometheus.MustRegister(validationRejections)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tradeNotional)
	prometheus.MustRegister(venueErrors)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(sweepPositions)
	prometheus.MustRegister(sweepActions)
	prometheus.MustRegister(sweepErrors)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordPrepared records a successfully prepared intent
func RecordPrepared(market, side string) {
	intentsPrepared.WithLabelValues(market, side).Inc()
}

// RecordConfirmOutcome records the result of a Confirm attempt
func RecordConfirmOutcome(outcome string) {
	confirmOutcomes.WithLabelValues(outcome).Inc()
}

// RecordValidationRejection records a rejected intent by rule
func RecordValidationRejection(rule string) {
	if rule == "" {
		rule = "unknown"
	}
	validationRejections.WithLabelValues(rule).Inc()
}

// RecordTrade records an executed trade and its notional
func RecordTrade(market, side string, notional float64) {
	tradesTotal.WithLabelValues(market, side).Inc()
	tradeNotional.WithLabelValues(market).Observe(notional)
}

// RecordVenueError records a failed venue call
func RecordVenueError(venue, op string) {
	venueErrors.WithLabelValues(venue, op).Inc()
}

// SetBreakerState publishes a venue breaker state
func SetBreakerState(venue string, state float64) {
	breakerState.WithLabelValues(venue).Set(state)
}

// RecordSweep records the outcome of one monitor sweep
func RecordSweep(processed int, errors int) {
	sweepPositions.Set(float64(processed))
	sweepErrors.Add(float64(errors))
}

// RecordSweepAction records one automatic close by trigger
func RecordSweepAction(trigger string) {
	sweepActions.WithLabelValues(trigger).Inc()
}
