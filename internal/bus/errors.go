package bus

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// ErrorCode categorizes bus errors.
type ErrorCode string

const (
	// CodeRateLimitExceeded indicates a producer exceeded its publish window.
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeMessageInvalid indicates a malformed topic, an unserializable
	// payload, or a size limit violation.
	CodeMessageInvalid ErrorCode = "MESSAGE_INVALID"

	// CodeSubscriptionInvalid indicates a malformed or disallowed pattern.
	CodeSubscriptionInvalid ErrorCode = "SUBSCRIPTION_INVALID"

	// CodeRouteActionError indicates a routing action failed.
	CodeRouteActionError ErrorCode = "ROUTE_ACTION_ERROR"

	// CodeControlRejected indicates a control message failed the guard.
	CodeControlRejected ErrorCode = "CONTROL_REJECTED"

	// CodeHandlerError indicates a subscriber handler failed or panicked.
	CodeHandlerError ErrorCode = "HANDLER_ERROR"
)

// BusError is the out-of-band error notification emitted on the Errors
// channel. Dropped publishes never surface to the publishing caller; they
// arrive here instead so observers can react without coupling every producer
// to error handling.
type BusError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Topic is the affected topic, when known.
	Topic string

	// Source is the producer, for rate-limit errors.
	Source string

	// Err is the underlying error, when one exists.
	Err error
}

// Error implements the error interface.
func (e *BusError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("%s: %s (topic=%s)", e.Code, e.Message, e.Topic)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *BusError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether err is a rate-limit drop.
// Uses errors.As to handle wrapped errors.
func IsRateLimitError(err error) bool {
	var be *BusError
	return errors.As(err, &be) && be.Code == CodeRateLimitExceeded
}

// IsMessageInvalidError reports whether err is a validation drop.
func IsMessageInvalidError(err error) bool {
	var be *BusError
	return errors.As(err, &be) && be.Code == CodeMessageInvalid
}

// IsSubscriptionInvalidError reports whether err is a rejected pattern.
func IsSubscriptionInvalidError(err error) bool {
	var be *BusError
	return errors.As(err, &be) && be.Code == CodeSubscriptionInvalid
}
