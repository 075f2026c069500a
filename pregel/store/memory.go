package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store[S].
//
// Checkpoints are deep-copied through JSON on save and load, so callers
// cannot mutate stored snapshots through shared references. Designed for:
//   - Unit and integration tests
//   - Short-lived workflows where persistence is unnecessary
//   - Development before wiring a durable backend
//
// All data is lost when the process exits.
type MemoryStore[S any] struct {
	mu          sync.RWMutex
	checkpoints map[string]map[int]Checkpoint[S] // workflowID -> superstep -> checkpoint
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore[S any]() *MemoryStore[S] {
	return &MemoryStore[S]{
		checkpoints: make(map[string]map[int]Checkpoint[S]),
	}
}

// Save stores a deep copy of the checkpoint, replacing any existing snapshot
// for the same workflow and superstep.
func (m *MemoryStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	copied, err := copyCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("failed to copy checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byStep, ok := m.checkpoints[cp.WorkflowID]
	if !ok {
		byStep = make(map[int]Checkpoint[S])
		m.checkpoints[cp.WorkflowID] = byStep
	}
	byStep[cp.Superstep] = copied
	return nil
}

// Load retrieves a deep copy of the checkpoint for the given superstep.
func (m *MemoryStore[S]) Load(ctx context.Context, workflowID string, superstep int) (Checkpoint[S], error) {
	m.mu.RLock()
	cp, ok := m.checkpoints[workflowID][superstep]
	m.mu.RUnlock()

	if !ok {
		var zero Checkpoint[S]
		return zero, fmt.Errorf("workflow %s superstep %d: %w", workflowID, superstep, ErrNotFound)
	}
	return copyCheckpoint(cp)
}

// Latest retrieves the checkpoint with the highest superstep.
func (m *MemoryStore[S]) Latest(ctx context.Context, workflowID string) (Checkpoint[S], error) {
	m.mu.RLock()
	byStep := m.checkpoints[workflowID]
	best := -1
	for step := range byStep {
		if step > best {
			best = step
		}
	}
	m.mu.RUnlock()

	if best < 0 {
		var zero Checkpoint[S]
		return zero, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return m.Load(ctx, workflowID, best)
}

// List returns the stored supersteps in ascending order.
func (m *MemoryStore[S]) List(ctx context.Context, workflowID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStep := m.checkpoints[workflowID]
	steps := make([]int, 0, len(byStep))
	for step := range byStep {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// Delete removes one checkpoint. Missing checkpoints are ignored.
func (m *MemoryStore[S]) Delete(ctx context.Context, workflowID string, superstep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byStep, ok := m.checkpoints[workflowID]; ok {
		delete(byStep, superstep)
		if len(byStep) == 0 {
			delete(m.checkpoints, workflowID)
		}
	}
	return nil
}

// copyCheckpoint deep-copies a checkpoint through a JSON round trip.
func copyCheckpoint[S any](cp Checkpoint[S]) (Checkpoint[S], error) {
	var out Checkpoint[S]
	data, err := json.Marshal(cp)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
