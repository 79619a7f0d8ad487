package engine

import (
	"errors"
	"fmt"
	"strings"
)

// EngineError is a structural failure: it aborts the whole resolution,
// unlike an edge failure which is collected into the Result.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EdgeID identifies the affected edge, if any.
	EdgeID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates a malformed request (missing edge id,
	// duplicate edge id, missing dependency metadata, unsupported selector).
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeEdgeLimit indicates the request carries more edges than allowed.
	ErrCodeEdgeLimit ErrorCode = "EDGE_LIMIT_EXCEEDED"

	// ErrCodeStore indicates a cache store read or write failed.
	ErrCodeStore ErrorCode = "STORE"

	// ErrCodeUpstream indicates the upstream artifacts of a transform step
	// could not be computed.
	ErrCodeUpstream ErrorCode = "UPSTREAM"

	// ErrCodeReplayMismatch indicates a persisted entry no longer matches
	// the component it was recorded against.
	ErrCodeReplayMismatch ErrorCode = "REPLAY_MISMATCH"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.EdgeID != "" {
		fmt.Fprintf(&b, " (edge=%s)", e.EdgeID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsInvalidRequest returns true if err is an invalid request error.
func IsInvalidRequest(err error) bool { return hasCode(err, ErrCodeInvalidRequest) }

// IsEdgeLimit returns true if err reports too many edges.
func IsEdgeLimit(err error) bool { return hasCode(err, ErrCodeEdgeLimit) }

// IsStoreError returns true if err is a cache store failure.
func IsStoreError(err error) bool { return hasCode(err, ErrCodeStore) }

// IsUpstreamError returns true if err is an upstream artifact failure.
func IsUpstreamError(err error) bool { return hasCode(err, ErrCodeUpstream) }

// IsReplayMismatch returns true if err is a replay mismatch.
func IsReplayMismatch(err error) bool { return hasCode(err, ErrCodeReplayMismatch) }

func invalidRequest(edgeID, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf(format, args...), EdgeID: edgeID}
}

func storeError(edgeID, message string, err error) *EngineError {
	return &EngineError{Code: ErrCodeStore, Message: message, EdgeID: edgeID, Err: err}
}

// EdgeFailure is one edge that could not be resolved.
type EdgeFailure struct {
	EdgeID string
	Kind   string
	Err    error
}

// FailuresError reports every failed edge of a resolution at once.
type FailuresError struct {
	Failures []EdgeFailure
}

func (e *FailuresError) Error() string {
	var b strings.Builder
	if len(e.Failures) == 1 {
		b.WriteString("1 edge failed to resolve:")
	} else {
		fmt.Fprintf(&b, "%d edges failed to resolve:", len(e.Failures))
	}
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  - edge %s [%s]: %v", f.EdgeID, f.Kind, f.Err)
	}
	return b.String()
}

// Unwrap exposes every edge error to errors.Is and errors.As.
func (e *FailuresError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Err
	}
	return out
}

// IsFailures returns true if err is a FailuresError.
func IsFailures(err error) bool {
	var fe *FailuresError
	return errors.As(err, &fe)
}
