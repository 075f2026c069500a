// Package store provides checkpoint persistence backends for the pregel
// runtime.
//
// A checkpoint captures everything needed to resume a workflow at a
// superstep boundary: the shared state, per-vertex lifecycle states,
// pending message queues, and retry counts. Backends implement the Store
// interface; Prune and Clear are retention helpers that work against any
// backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is a serializable snapshot of a workflow at a superstep
// boundary. Type parameter S is the workflow state type and must be
// JSON-serializable.
type Checkpoint[S any] struct {
	// WorkflowID identifies the workflow this snapshot belongs to.
	WorkflowID string `json:"workflow_id"`

	// Superstep is the superstep the workflow resumes at.
	Superstep int `json:"superstep"`

	// State is the shared workflow state.
	State S `json:"state"`

	// VertexStates maps vertex IDs to lifecycle state names
	// (active/halted/completed).
	VertexStates map[string]string `json:"vertex_states"`

	// PendingMessages maps vertex IDs to their undelivered inboxes,
	// each message JSON-encoded.
	PendingMessages map[string][]json.RawMessage `json:"pending_messages,omitempty"`

	// RetryCounts maps vertex IDs to in-flight retry counts.
	RetryCounts map[string]int `json:"retry_counts,omitempty"`

	// Timestamp records when the checkpoint was taken (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries optional caller annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the persistence contract for checkpoints.
//
// Save is an upsert on (WorkflowID, Superstep): re-saving the same superstep
// replaces the stored snapshot. List returns supersteps in ascending order.
// Load and Latest return ErrNotFound when nothing matches.
//
// Implementations must be safe for concurrent use.
type Store[S any] interface {
	// Save persists a checkpoint, replacing any existing snapshot for
	// the same workflow and superstep.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// Load retrieves the checkpoint for a specific superstep.
	Load(ctx context.Context, workflowID string, superstep int) (Checkpoint[S], error)

	// Latest retrieves the checkpoint with the highest superstep.
	Latest(ctx context.Context, workflowID string) (Checkpoint[S], error)

	// List returns the supersteps with stored checkpoints, ascending.
	List(ctx context.Context, workflowID string) ([]int, error)

	// Delete removes the checkpoint for a specific superstep. Deleting
	// a missing checkpoint is not an error.
	Delete(ctx context.Context, workflowID string, superstep int) error
}

// Prune deletes all but the keep most recent checkpoints of a workflow.
// keep <= 0 removes everything.
func Prune[S any](ctx context.Context, s Store[S], workflowID string, keep int) error {
	supersteps, err := s.List(ctx, workflowID)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(supersteps) <= keep {
		return nil
	}
	for _, step := range supersteps[:len(supersteps)-keep] {
		if err := s.Delete(ctx, workflowID, step); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every checkpoint of a workflow.
func Clear[S any](ctx context.Context, s Store[S], workflowID string) error {
	return Prune(ctx, s, workflowID, 0)
}
