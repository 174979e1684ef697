// Package engerr defines the error kinds used across the pipeline.
// Errors are classified by Kind rather than by Go type hierarchy,
// so callers branch on kind with errors.Is/errors.As rather than on
// concrete types.
package engerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy decisions.
type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	BackendUnavailable   Kind = "backend_unavailable"
	Timeout              Kind = "timeout"
	ModelError           Kind = "model_error"
	ParseError           Kind = "parse_error"
	Cancelled            Kind = "cancelled"
	Internal             Kind = "internal"
)

// Error wraps an underlying error with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a new *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err. When err does not wrap an *Error (or is
// nil) it returns "" and false.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Retryable reports whether an error of this Kind should be retried by the
// retry envelope: transport/timeout/backend errors are retryable,
// validation errors are not.
func Retryable(err error) bool {
	k, ok := Of(err)
	if !ok {
		// Unclassified errors (e.g. raw network errors from an SDK) are
		// treated as retryable; only explicitly-classified validation
		// errors are excluded.
		return true
	}
	switch k {
	case InvalidInput, ParseError, Cancelled:
		return false
	default:
		return true
	}
}
