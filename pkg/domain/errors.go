package domain

import (
	"fmt"
)

// TransportError marks a network-level failure (connect, timeout, 5xx) on
// an external call. Transport failures are retried locally and then treated
// as an empty or failed unit, never as a session-fatal condition.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a transport failure for operation op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ParseError marks model output that is not well-formed JSON.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision parse failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("decision parse failed: %s", e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError marks well-formed JSON that fails shape validation for the
// declared action or stage.
type SchemaError struct {
	Detail string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision schema invalid: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("decision schema invalid: %s", e.Detail)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// NotFoundError marks a fetched document that no longer exists (HTTP 404/410).
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.URL)
}
