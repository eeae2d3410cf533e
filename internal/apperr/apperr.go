// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Repositories wrap these sentinels so callers can match with
// errors.Is regardless of which collection failed.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many requests")
)

// ValidationError reports rejected input. Details carries structured,
// JSON-encodable information such as per-row errors.
type ValidationError struct {
	Message string
	Details interface{}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a ValidationError without details.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails builds a ValidationError carrying details.
func ValidationWithDetails(message string, details interface{}) error {
	return &ValidationError{Message: message, Details: details}
}

// UpstreamError marks a failure of the database, the asset store or the
// message broker.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it already belongs to the
// taxonomy, in which case it is returned unchanged.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// kindError carries its own message while matching a sentinel.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Conflictf returns an error matching ErrConflict with a readable message.
func Conflictf(format string, args ...interface{}) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kind: ErrConflict}
}

// NotFoundf returns an error matching ErrNotFound with a readable message.
func NotFoundf(format string, args ...interface{}) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kind: ErrNotFound}
}

// Forbiddenf returns an error matching ErrForbidden with a readable message.
func Forbiddenf(format string, args ...interface{}) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kind: ErrForbidden}
}

// Classified reports whether err already carries a taxonomy kind.
func Classified(err error) bool {
	var ve *ValidationError
	var ue *UpstreamError
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrRateLimited) ||
		errors.As(err, &ve) ||
		errors.As(err, &ue)
}
