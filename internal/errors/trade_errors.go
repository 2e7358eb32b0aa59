package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error in the trade pipeline
type Kind string

const (
	// Caller mistakes, never retried
	KindValidation      Kind = "VALIDATION"
	KindExpired         Kind = "EXPIRED"
	KindAlreadyConsumed Kind = "ALREADY_CONSUMED"
	KindPositionClosing Kind = "POSITION_CLOSING"

	// Venue-side failures
	KindVenue            Kind = "VENUE"
	KindNoVenueAvailable Kind = "NO_VENUE_AVAILABLE"
	KindTimeout          Kind = "TIMEOUT"

	// Operator problems that should stop the service
	KindConfiguration Kind = "CONFIG"
	KindCredentials   Kind = "CREDENTIALS"

	KindInternal Kind = "INTERNAL"
)

// TradeError is a categorized error with component/operation context
type TradeError struct {
	Kind       Kind
	Component  string
	Op         string
	Message    string
	Rule       string // violated validation rule, when Kind is VALIDATION
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *TradeError) Error() string {
	msg := e.Message
	if e.Rule != "" {
		msg = fmt.Sprintf("%s (rule: %s)", msg, e.Rule)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Kind, e.Component, e.Op, msg, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Kind, e.Component, e.Op, msg)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *TradeError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the service
func (e *TradeError) IsFatal() bool {
	return e.Kind == KindConfiguration || e.Kind == KindCredentials
}

// New creates a categorized trade error
func New(kind Kind, component, op, message string) *TradeError {
	return &TradeError{
		Kind:      kind,
		Component: component,
		Op:        op,
		Message:   message,
		Retryable: retryableKind(kind),
	}
}

// Wrap wraps an existing error with trade error context
func Wrap(err error, kind Kind, component, op string) *TradeError {
	if err == nil {
		return nil
	}
	return &TradeError{
		Kind:       kind,
		Component:  component,
		Op:         op,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  retryableKind(kind),
	}
}

// WithRetryable overrides the retryable flag
func (e *TradeError) WithRetryable(retryable bool) *TradeError {
	e.Retryable = retryable
	return e
}

// WithRule records the violated validation rule
func (e *TradeError) WithRule(rule string) *TradeError {
	e.Rule = rule
	return e
}

func retryableKind(kind Kind) bool {
	switch kind {
	case KindVenue, KindTimeout:
		return true
	default:
		return false
	}
}

// Validation constructs a non-retryable validation error naming the
// violated rule. Validate must always surface the specific rule, never
// a generic failure.
func Validation(component, op, rule, message string) *TradeError {
	return New(KindValidation, component, op, message).WithRule(rule)
}

func Expired(component, op string) *TradeError {
	return New(KindExpired, component, op, "confirmation expired")
}

func AlreadyConsumed(component, op string) *TradeError {
	return New(KindAlreadyConsumed, component, op, "confirmation already consumed")
}

func PositionClosing(component, op, positionID string) *TradeError {
	return New(KindPositionClosing, component, op,
		fmt.Sprintf("position %s already has a close in flight", positionID))
}

func Venue(component, op string, err error) *TradeError {
	return Wrap(err, KindVenue, component, op)
}

func NoVenueAvailable(component, op, capability string) *TradeError {
	return New(KindNoVenueAvailable, component, op,
		fmt.Sprintf("no healthy venue for capability %q", capability))
}

func Timeout(component, op string, err error) *TradeError {
	return Wrap(err, KindTimeout, component, op)
}

func Configuration(component, op, message string) *TradeError {
	return New(KindConfiguration, component, op, message)
}

func Credentials(component, op, message string) *TradeError {
	return New(KindCredentials, component, op, message)
}

// KindOf extracts the Kind of err, or KindInternal for uncategorized errors.
func KindOf(err error) Kind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

func is(err error, kind Kind) bool {
	var te *TradeError
	return errors.As(err, &te) && te.Kind == kind
}

func IsValidation(err error) bool       { return is(err, KindValidation) }
func IsExpired(err error) bool          { return is(err, KindExpired) }
func IsAlreadyConsumed(err error) bool  { return is(err, KindAlreadyConsumed) }
func IsPositionClosing(err error) bool  { return is(err, KindPositionClosing) }
func IsVenue(err error) bool            { return is(err, KindVenue) || is(err, KindTimeout) }
func IsNoVenueAvailable(err error) bool { return is(err, KindNoVenueAvailable) }

// ViolatedRule returns the rule name carried by a validation error.
func ViolatedRule(err error) string {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Rule
	}
	return ""
}
