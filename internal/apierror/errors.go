// Package apierror defines the typed error-kind taxonomy shared by every
// core component: RateBook, the calculation engines, PayrollStateMachine,
// YearEndWorkflow and ExportRouter all fail through this package so callers
// can switch on Kind instead of parsing messages.
package apierror

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidState     Kind = "invalid_state"
	KindPermissionDenied Kind = "permission_denied"
	KindValidationFailed Kind = "validation_failed"
	KindAmbiguousRate    Kind = "ambiguous_rate"
	KindInternal         Kind = "internal"
)

// Error is the error type returned by every core component.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, format, args...)
}

func PermissionDeniedf(format string, args ...interface{}) *Error {
	return newf(KindPermissionDenied, format, args...)
}

func ValidationFailedf(format string, args ...interface{}) *Error {
	return newf(KindValidationFailed, format, args...)
}

func AmbiguousRatef(format string, args ...interface{}) *Error {
	return newf(KindAmbiguousRate, format, args...)
}

// Internal wraps a lower-level error (driver error, invariant-check
// failure) as a Kind=Internal apierror.Error. The original error is kept
// for logging via Unwrap but never rendered into Message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Patterns that indicate internal/sensitive details which must never reach
// a caller-facing message.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pq:|pgx:|sql:|postgres`),
	regexp.MustCompile(`(?i)connection|timeout|refused`),
	regexp.MustCompile(`(?i)/var/|/tmp/|/home/|/app/|\.go:\d+`),
	regexp.MustCompile(`(?i)dial tcp|network|socket`),
	regexp.MustCompile(`(?i)panic|runtime error`),
	regexp.MustCompile(`(?i)internal server|stack trace`),
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), // IP addresses
}

const genericError = "An internal error occurred"

// Sanitize removes sensitive information from error messages before they
// are attached to a Kind=Internal error. Validation/format errors pass
// through untouched.
func Sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(msg) {
			return genericError
		}
	}
	if strings.Contains(msg, "/") && (strings.Contains(msg, "open") || strings.Contains(msg, "read") || strings.Contains(msg, "write")) {
		return genericError
	}
	return msg
}
