package pregel

import (
	"encoding/json"
	"fmt"
)

// Update is the capability contract for state deltas produced by vertices.
//
// Updates from all vertices in a superstep are merged into a single update
// before being applied to the workflow state.
type Update interface {
	// IsEmpty reports whether applying this update would be a no-op.
	IsEmpty() bool
}

// WorkflowState is the capability contract for the shared state a workflow
// threads through its supersteps. S is the implementing type itself and U
// is its update type.
//
// ApplyUpdate must be pure: it returns a new state and leaves the receiver
// untouched. MergeUpdates must be deterministic and order-independent, since
// vertices compute concurrently within a superstep.
//
// Example:
//
//	type CounterState struct{ Count int }
//
//	type CounterUpdate struct{ Delta int }
//
//	func (u CounterUpdate) IsEmpty() bool { return u.Delta == 0 }
//
//	func (s CounterState) ApplyUpdate(u CounterUpdate) CounterState {
//	    return CounterState{Count: s.Count + u.Delta}
//	}
//
//	func (s CounterState) MergeUpdates(updates []CounterUpdate) CounterUpdate {
//	    var sum int
//	    for _, u := range updates {
//	        sum += u.Delta
//	    }
//	    return CounterUpdate{Delta: sum}
//	}
//
//	func (s CounterState) IsTerminal() bool { return s.Count >= 100 }
type WorkflowState[S, U any] interface {
	// ApplyUpdate applies a single update and returns the resulting state.
	ApplyUpdate(u U) S

	// MergeUpdates combines the updates produced within one superstep
	// into a single update.
	MergeUpdates(updates []U) U

	// IsTerminal reports whether the workflow should stop regardless of
	// vertex states or pending messages.
	IsTerminal() bool
}

// applyUpdates merges then applies a batch of updates. An empty batch
// returns the state unchanged.
func applyUpdates[S WorkflowState[S, U], U Update](state S, updates []U) S {
	if len(updates) == 0 {
		return state
	}
	merged := state.MergeUpdates(updates)
	return state.ApplyUpdate(merged)
}

// UnitState is a no-op state for workflows that communicate purely through
// messages.
type UnitState struct{}

// UnitUpdate is the empty update paired with UnitState.
type UnitUpdate struct{}

// IsEmpty always reports true.
func (UnitUpdate) IsEmpty() bool { return true }

// ApplyUpdate returns UnitState unchanged.
func (UnitState) ApplyUpdate(UnitUpdate) UnitState { return UnitState{} }

// MergeUpdates collapses any batch into the empty update.
func (UnitState) MergeUpdates([]UnitUpdate) UnitUpdate { return UnitUpdate{} }

// IsTerminal always reports false.
func (UnitState) IsTerminal() bool { return false }

// deepCopy creates a deep copy of state S using JSON round-trip
// serialization.
//
// This works for any type that can be JSON-marshaled: primitives, structs
// with exported fields, slices, and maps. Unexported fields are not copied,
// and types that cannot marshal to JSON fail with an error. Checkpointing
// has the same requirement, so any checkpointable state deep-copies cleanly.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
