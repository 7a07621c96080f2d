// Package kycerr defines the error taxonomy every component wraps its
// failures in, so HTTP handlers and log sites can react to a Kind rather
// than parsing error strings.
package kycerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error along the lines of the error handling design:
// validation, authn/authz, transient infra, terminal infra, processing,
// signature, circuit-open, or an unexpected programmer error.
type Kind string

const (
	Validation    Kind = "VALIDATION_ERROR"
	AuthN         Kind = "AUTHN_ERROR"
	NotFound      Kind = "NOT_FOUND"
	Transient     Kind = "TRANSIENT_INFRA"
	TerminalInfra Kind = "TERMINAL_INFRA"
	Processing    Kind = "PROCESSING_FAILURE"
	Signature     Kind = "SIGNATURE_FAILURE"
	CircuitOpen   Kind = "CIRCUIT_OPEN"
	Internal      Kind = "INTERNAL_ERROR"
)

// httpStatus maps each Kind to the status code the HTTP surface returns.
var httpStatus = map[Kind]int{
	Validation:    http.StatusBadRequest,
	AuthN:         http.StatusUnauthorized,
	NotFound:      http.StatusNotFound,
	Transient:     http.StatusServiceUnavailable,
	TerminalInfra: http.StatusUnprocessableEntity,
	Processing:    http.StatusUnprocessableEntity,
	Signature:     http.StatusUnauthorized,
	CircuitOpen:   http.StatusServiceUnavailable,
	Internal:      http.StatusInternalServerError,
}

// Error is a classified, correlation-tagged error that wraps an underlying
// cause while preserving it for errors.Is/As.
type Error struct {
	Kind          Kind
	Code          string // machine-readable code, e.g. "MISSING_SIGNATURE"
	Message       string
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code the taxonomy assigns to this Kind.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds a classified error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a classified error around an existing cause, the way the
// teacher wraps pgx/redis errors with fmt.Errorf("...: %w", err).
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithCorrelationID attaches the in-flight correlation ID, so every error
// that crosses a component boundary carries it through to logs and HTTP
// responses.
func (e *Error) WithCorrelationID(cid string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, CorrelationID: cid, cause: e.cause}
}

// Is allows errors.Is(err, kycerr.Validation) style matching against a Kind
// sentinel created with New(kind, "", "").
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to Internal for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf extracts the machine-readable code, empty if unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
