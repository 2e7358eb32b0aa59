package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	traderr "github.com/cryptopilot/trade-core/internal/errors"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/monitoring"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/settings"
	"github.com/cryptopilot/trade-core/internal/venue"
)

const component = "coordinator"

// Config tunes the two-phase execution flow
type Config struct {
	ConfirmationTTL time.Duration // how long a prepared intent stays confirmable
	ExecuteTimeout  time.Duration // hard bound on a single venue execution
}

// DefaultConfig returns the standard coordinator settings
func DefaultConfig() Config {
	return Config{
		ConfirmationTTL: 5 * time.Minute,
		ExecuteTimeout:  15 * time.Second,
	}
}

// PrepareResult is returned to the client after a successful Prepare
type PrepareResult struct {
	ConfirmationID string  `json:"confirmation_id"`
	EstimatedPrice float64 `json:"estimated_price"`
	RequiredMargin float64 `json:"required_margin"`
}

// ConfirmResult is the venue's execution outcome
type ConfirmResult struct {
	OrderID   string    `json:"order_id"`
	FillPrice float64   `json:"fill_price"`
	Status    string    `json:"status"`
	Venue     string    `json:"venue"`
	Timestamp time.Time `json:"timestamp"`
}

// CloseOutcome reports a completed position close
type CloseOutcome struct {
	OrderID    string  `json:"order_id"`
	ClosedSize float64 `json:"closed_size"`
	FillPrice  float64 `json:"fill_price"`
	Venue      string  `json:"venue"`
}

// Coordinator turns structured trade intents into two-phase executions:
// Prepare validates and parks the intent behind a confirmation ID,
// Confirm consumes the ID exactly once and routes the order to a venue.
// Intent extraction from free text belongs to the chat layer; the
// coordinator only ever sees structured intents.
type Coordinator struct {
	engine   *risk.Engine
	selector *venue.Selector
	store    *ConfirmationStore
	limits   settings.LimitsProvider
	recorder history.Recorder
	config   Config

	// closing serializes mutation per position ID: a manual close and a
	// monitor close racing on the same position cannot both execute.
	closingMu sync.Mutex
	closing   map[string]struct{}
}

// New creates a coordinator
func New(engine *risk.Engine, selector *venue.Selector, store *ConfirmationStore,
	limits settings.LimitsProvider, recorder history.Recorder, config Config) *Coordinator {
	if config.ConfirmationTTL <= 0 {
		config.ConfirmationTTL = DefaultConfig().ConfirmationTTL
	}
	if config.ExecuteTimeout <= 0 {
		config.ExecuteTimeout = DefaultConfig().ExecuteTimeout
	}
	return &Coordinator{
		engine:   engine,
		selector: selector,
		store:    store,
		limits:   limits,
		recorder: recorder,
		config:   config,
		closing:  make(map[string]struct{}),
	}
}

// Prepare validates an intent against a fresh portfolio snapshot and,
// on success, parks it behind a new confirmation ID. Validation
// failures store nothing and name the violated rule.
func (c *Coordinator) Prepare(ctx context.Context, intent risk.TradeIntent) (*PrepareResult, error) {
	const op = "Prepare"

	if intent.Leverage < 1.0 {
		intent.Leverage = 1.0
	}
	intent.CreatedAt = time.Now().UTC()

	limits, err := c.limits.Limits(ctx, intent.UserID)
	if err != nil {
		return nil, traderr.Wrap(err, traderr.KindInternal, component, op)
	}

	cap := venue.CapabilityFor(intent.Leverage)
	snapshot, err := c.selector.GetPortfolio(ctx, intent.UserID, cap)
	if err != nil {
		return nil, err
	}

	quote, err := c.selector.Quote(ctx, venue.QuoteRequest{
		Market:   intent.Market,
		Side:     intent.Action,
		Size:     intent.Amount,
		Leverage: intent.Leverage,
	})
	if err != nil {
		return nil, err
	}

	if err := c.engine.Validate(intent, quote.Price, *snapshot, limits); err != nil {
		monitoring.RecordValidationRejection(traderr.ViolatedRule(err))
		return nil, err
	}

	confirmationID := uuid.NewString()
	c.store.Put(confirmationID, ConfirmationRecord{
		Intent:         intent,
		EstimatedPrice: quote.Price,
		RequiredMargin: quote.RequiredMargin,
	}, c.config.ConfirmationTTL)

	monitoring.RecordPrepared(intent.Market, string(intent.Action))

	return &PrepareResult{
		ConfirmationID: confirmationID,
		EstimatedPrice: quote.Price,
		RequiredMargin: quote.RequiredMargin,
	}, nil
}

// Confirm atomically consumes the confirmation record and executes the
// parked intent. Exactly one Confirm per ID succeeds; later calls get
// AlreadyConsumed, and a call past the TTL gets Expired. A venue
// failure leaves the record consumed: execution is never retried
// automatically, the caller must Prepare again.
func (c *Coordinator) Confirm(ctx context.Context, confirmationID, userID string) (*ConfirmResult, error) {
	const op = "Confirm"

	record, result := c.store.ConsumeIfPending(confirmationID)
	switch result {
	case ConsumeAlreadyConsumed:
		return nil, traderr.AlreadyConsumed(component, op)
	case ConsumeExpired:
		return nil, traderr.Expired(component, op)
	}

	if record.Intent.UserID != userID {
		// Fail closed without revealing whether the ID was ever valid.
		log.Printf("confirmation %s consumed by non-owner %s", confirmationID, userID)
		return nil, traderr.Expired(component, op)
	}

	intent := record.Intent
	cap := venue.CapabilityFor(intent.Leverage)

	// Cheap liveness probe before committing the order.
	if err := c.selector.HealthCheck(ctx, cap); err != nil {
		monitoring.RecordConfirmOutcome("failed")
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, c.config.ExecuteTimeout)
	defer cancel()

	exec, err := c.selector.Execute(execCtx, venue.ExecuteRequest{
		UserID:    intent.UserID,
		Market:    intent.Market,
		Side:      intent.Action,
		Size:      intent.Amount,
		Leverage:  intent.Leverage,
		OrderType: venue.OrderTypeMarket,
	})
	if err != nil {
		monitoring.RecordConfirmOutcome("failed")
		return nil, err
	}

	monitoring.RecordConfirmOutcome("executed")
	monitoring.RecordTrade(intent.Market, string(intent.Action), exec.Size*exec.FillPrice)

	if rerr := c.recorder.Record(ctx, history.Record{
		UserID:    intent.UserID,
		Market:    intent.Market,
		Side:      string(intent.Action),
		Size:      exec.Size,
		FillPrice: exec.FillPrice,
		Leverage:  intent.Leverage,
		OrderID:   exec.OrderID,
		Venue:     exec.Venue,
		Source:    history.SourceUser,
		CreatedAt: exec.Timestamp,
	}); rerr != nil {
		// The trade already happened; a sink failure must not fail it.
		log.Printf("trade history write failed: %v", rerr)
	}

	return &ConfirmResult{
		OrderID:   exec.OrderID,
		FillPrice: exec.FillPrice,
		Status:    "executed",
		Venue:     exec.Venue,
		Timestamp: exec.Timestamp,
	}, nil
}

// ClosePosition issues a reduce-only close for one position. Closes on
// the same position ID serialize: the loser of a race gets
// PositionAlreadyClosing instead of double-executing.
func (c *Coordinator) ClosePosition(ctx context.Context, p risk.Position, percentage float64,
	source history.Source, reason string) (*CloseOutcome, error) {
	const op = "ClosePosition"

	if !c.tryAcquire(p.ID) {
		return nil, traderr.PositionClosing(component, op, p.ID)
	}
	defer c.release(p.ID)

	execCtx, cancel := context.WithTimeout(ctx, c.config.ExecuteTimeout)
	defer cancel()

	result, err := c.selector.Close(execCtx, p.Venue, venue.CloseRequest{
		UserID:     p.UserID,
		PositionID: p.ID,
		Market:     p.Market,
		Percentage: percentage,
	})
	if err != nil {
		return nil, err
	}

	if rerr := c.recorder.Record(ctx, history.Record{
		UserID:     p.UserID,
		Market:     p.Market,
		Side:       string(p.Side),
		Size:       result.ClosedSize,
		FillPrice:  result.FillPrice,
		Leverage:   p.Leverage,
		ReduceOnly: true,
		OrderID:    result.OrderID,
		Venue:      result.Venue,
		Source:     source,
		Reason:     reason,
		CreatedAt:  result.Timestamp,
	}); rerr != nil {
		log.Printf("trade history write failed: %v", rerr)
	}

	return &CloseOutcome{
		OrderID:    result.OrderID,
		ClosedSize: result.ClosedSize,
		FillPrice:  result.FillPrice,
		Venue:      result.Venue,
	}, nil
}

// Positions lists a user's open positions across venues.
func (c *Coordinator) Positions(ctx context.Context, userID string) ([]risk.Position, error) {
	return c.selector.GetPositions(ctx, userID)
}

func (c *Coordinator) tryAcquire(positionID string) bool {
	c.closingMu.Lock()
	defer c.closingMu.Unlock()
	if _, busy := c.closing[positionID]; busy {
		return false
	}
	c.closing[positionID] = struct{}{}
	return true
}

func (c *Coordinator) release(positionID string) {
	c.closingMu.Lock()
	defer c.closingMu.Unlock()
	delete(c.closing, positionID)
}
