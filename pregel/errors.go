package pregel

import (
	"errors"
	"fmt"
)

// ErrMaxSuperstepsExceeded indicates that the workflow reached the maximum
// allowed superstep count without terminating. This prevents infinite loops
// and runaway executions.
var ErrMaxSuperstepsExceeded = errors.New("max supersteps exceeded")

// ErrWorkflowTimeout indicates that the workflow deadline expired before the
// workflow terminated.
var ErrWorkflowTimeout = errors.New("workflow timeout")

// ErrVertexTimeout indicates that a single vertex computation exceeded the
// per-vertex deadline. Timeouts are retried according to the retry policy.
var ErrVertexTimeout = errors.New("vertex timeout")

// ErrMaxRetriesExceeded indicates that a vertex kept failing after
// exhausting its retry budget.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// ErrNonRecoverable marks a vertex failure as fatal. The runtime fails the
// run immediately instead of applying the retry policy. Wrap errors with
// Fatal to set the marker.
var ErrNonRecoverable = errors.New("non-recoverable vertex error")

// Fatal marks err as non-recoverable so the runtime propagates it without
// retrying. Returns nil when err is nil.
//
//	if resp.StatusCode == http.StatusUnauthorized {
//	    return pregel.ComputeResult[Update]{}, pregel.Fatal(err)
//	}
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNonRecoverable, err)
}

// ErrCancelled indicates that the caller cancelled the workflow context.
var ErrCancelled = errors.New("workflow cancelled")

// ErrCheckpoint wraps failures while saving or loading checkpoints.
var ErrCheckpoint = errors.New("checkpoint error")

// ErrCheckpointMismatch indicates that a checkpoint belongs to a different
// workflow than the runtime trying to restore it.
var ErrCheckpointMismatch = errors.New("checkpoint workflow mismatch")

// ErrNoVertices indicates a Run attempt on a runtime with no vertices.
var ErrNoVertices = errors.New("no vertices registered")

// ErrNoEntryVertex indicates edge-driven execution without an entry vertex.
var ErrNoEntryVertex = errors.New("no entry vertex set")

// ErrDuplicateVertex indicates an AddVertex call reusing an existing ID.
var ErrDuplicateVertex = errors.New("duplicate vertex id")

// ErrUnknownVertex indicates a reference to a vertex ID that was never
// registered.
var ErrUnknownVertex = errors.New("unknown vertex")

// VertexError wraps a failure inside a vertex computation with the identity
// of the vertex that produced it.
//
// Use errors.As to recover the VertexError and errors.Is to match the
// underlying cause:
//
//	var verr *pregel.VertexError
//	if errors.As(err, &verr) {
//	    log.Printf("vertex %s failed: %v", verr.VertexID, verr.Cause)
//	}
type VertexError struct {
	VertexID VertexID
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *VertexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vertex %s: %s: %v", e.VertexID, e.Message, e.Cause)
	}
	return fmt.Sprintf("vertex %s: %s", e.VertexID, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *VertexError) Unwrap() error { return e.Cause }

// newVertexError builds a VertexError around cause.
func newVertexError(id VertexID, msg string, cause error) *VertexError {
	return &VertexError{VertexID: id, Message: msg, Cause: cause}
}
