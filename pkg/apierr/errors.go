// Package apierr defines the error kinds surfaced by the quote and trade
// contexts. Every public operation fails with one of these, wrapped or bare,
// so callers can branch with errors.Is / errors.As.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNotConnected     = errors.New("not connected")
	ErrTimeout          = errors.New("request timeout")
	ErrNotSubscribed    = errors.New("not subscribed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidState     = errors.New("invalid order state")
	ErrAuth             = errors.New("authentication failed")
	ErrNetwork          = errors.New("network error")
	ErrPartialFailure   = errors.New("partial failure")
	ErrServer           = errors.New("server error")
)

// ValidationError reports malformed caller input. It is always produced
// locally and never after a request was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ServerError carries an explicit error code returned by the gateway.
type ServerError struct {
	Code    int64
	Message string
	TraceID string
}

func (e *ServerError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("server error %d: %s (trace %s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

func (e *ServerError) Is(target error) bool { return target == ErrServer }

// PartialFailure is returned by batch operations when only part of the batch
// was accepted. Accepted items have already taken effect.
type PartialFailure struct {
	Failed []string
	Cause  error
}

func (e *PartialFailure) Error() string {
	msg := fmt.Sprintf("partial failure: %d rejected [%s]", len(e.Failed), strings.Join(e.Failed, ","))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PartialFailure) Is(target error) bool { return target == ErrPartialFailure }

func (e *PartialFailure) Unwrap() error { return e.Cause }

// FailedItems returns the rejected subset if err is a *PartialFailure.
func FailedItems(err error) []string {
	var pf *PartialFailure
	if errors.As(err, &pf) {
		return pf.Failed
	}
	return nil
}
