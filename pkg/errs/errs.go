// Package errs defines the tagged-variant error kinds the scan service
// maps to HTTP statuses, so handlers never need a type switch of their own.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure the service boundary cares about.
type Kind string

const (
	KindInputInvalid       Kind = "input_invalid"
	KindRegexTimeout       Kind = "regex_timeout"
	KindScanTimeout        Kind = "scan_timeout"
	KindRuleCompileFailure Kind = "rule_compile_failure"
	KindDatasetIntegrity   Kind = "dataset_integrity_error"
	KindScannerInternal    Kind = "scanner_internal"
	KindCircuitOpen        Kind = "circuit_open"
	KindAuthFailure        Kind = "auth_failure"
	KindRateLimited        Kind = "rate_limited"
)

// statusByKind maps a Kind to the HTTP status the service boundary should
// return. KindRegexTimeout is deliberately absent: a regex timeout is
// per-rule and internal to the evaluator (it just disables that match),
// and never surfaces as an HTTP status of its own.
var statusByKind = map[Kind]int{
	KindInputInvalid:       http.StatusUnprocessableEntity,
	KindScanTimeout:        http.StatusGatewayTimeout,
	KindRuleCompileFailure: http.StatusInternalServerError,
	KindDatasetIntegrity:   http.StatusInternalServerError,
	KindScannerInternal:    http.StatusInternalServerError,
	KindCircuitOpen:        http.StatusServiceUnavailable,
	KindAuthFailure:        http.StatusUnauthorized,
	KindRateLimited:        http.StatusTooManyRequests,
}

// Error is a Layer-0 error carrying a Kind the HTTP boundary can translate
// into a status code without inspecting error strings.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code this error's kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New wraps err (which may be nil) under op and kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// HTTPStatus extracts the HTTP status for any error, walking wrapped errors
// with errors.As; unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind from any error, the zero Kind if none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
