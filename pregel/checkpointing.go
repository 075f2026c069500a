package pregel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/pregel-go/pregel/emit"
	"github.com/dshills/pregel-go/pregel/store"
)

// snapshot captures the runtime's resumable state as a checkpoint.
func (r *Runtime[S, U]) snapshot() (store.Checkpoint[S], error) {
	var zero store.Checkpoint[S]

	state, err := deepCopy(r.state)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}

	vertexStates := make(map[string]string, len(r.vertexStates))
	for id, st := range r.vertexStates {
		vertexStates[string(id)] = st.String()
	}

	pending := make(map[string][]json.RawMessage)
	for id, q := range r.queues {
		if len(q) == 0 {
			continue
		}
		encoded := make([]json.RawMessage, 0, len(q))
		for _, msg := range q {
			data, err := json.Marshal(msg)
			if err != nil {
				return zero, fmt.Errorf("%w: failed to marshal message for %s: %v", ErrCheckpoint, id, err)
			}
			encoded = append(encoded, data)
		}
		pending[string(id)] = encoded
	}

	r.mu.Lock()
	retryCounts := make(map[string]int, len(r.retryCounts))
	for id, n := range r.retryCounts {
		retryCounts[string(id)] = n
	}
	r.mu.Unlock()

	return store.Checkpoint[S]{
		WorkflowID:      r.workflowID,
		Superstep:       r.superstep,
		State:           state,
		VertexStates:    vertexStates,
		PendingMessages: pending,
		RetryCounts:     retryCounts,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// restore loads a checkpoint into the runtime.
//
// The checkpoint must belong to this runtime's workflow ID
// (ErrCheckpointMismatch otherwise), and every vertex it references must be
// registered, so a topology that drifted since the save is rejected instead
// of silently resuming with orphaned state.
func (r *Runtime[S, U]) restore(cp store.Checkpoint[S]) error {
	if cp.WorkflowID != r.workflowID {
		return fmt.Errorf("%w: expected %s, found %s", ErrCheckpointMismatch, r.workflowID, cp.WorkflowID)
	}

	for id := range cp.VertexStates {
		if _, ok := r.vertices[VertexID(id)]; !ok {
			return fmt.Errorf("%w: checkpoint references unknown vertex %s", ErrCheckpoint, id)
		}
	}
	for id := range cp.PendingMessages {
		if _, ok := r.vertices[VertexID(id)]; !ok {
			return fmt.Errorf("%w: checkpoint references unknown vertex %s", ErrCheckpoint, id)
		}
	}

	state, err := deepCopy(cp.State)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}

	vertexStates := make(map[VertexID]VertexState, len(r.order))
	for _, id := range r.order {
		vertexStates[id] = StateHalted
	}
	for id, name := range cp.VertexStates {
		st, ok := ParseVertexState(name)
		if !ok {
			return fmt.Errorf("%w: invalid vertex state %q for %s", ErrCheckpoint, name, id)
		}
		vertexStates[VertexID(id)] = st
	}

	// Queues are cleared before restoring so stale messages from a
	// partially executed superstep cannot survive the resume.
	queues := make(map[VertexID][]Message, len(r.order))
	for _, id := range r.order {
		queues[id] = nil
	}
	for id, encoded := range cp.PendingMessages {
		msgs := make([]Message, 0, len(encoded))
		for _, data := range encoded {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("%w: failed to unmarshal message for %s: %v", ErrCheckpoint, id, err)
			}
			msgs = append(msgs, msg)
		}
		queues[VertexID(id)] = msgs
	}

	retryCounts := make(map[VertexID]int, len(cp.RetryCounts))
	for id, n := range cp.RetryCounts {
		retryCounts[VertexID(id)] = n
	}

	r.state = state
	r.vertexStates = vertexStates
	r.queues = queues
	r.mu.Lock()
	r.retryCounts = retryCounts
	r.mu.Unlock()
	r.superstep = cp.Superstep
	r.restored = true
	return nil
}

// CheckpointingRuntime couples a Runtime with a checkpoint store. It saves a
// checkpoint every Config.CheckpointInterval supersteps during Run and can
// resume a workflow from a stored snapshot.
//
// Resuming requires rebuilding the runtime with the same topology and the
// same workflow ID (WithWorkflowID):
//
//	rt := pregel.NewRuntime[S, U](initial, pregel.WithWorkflowID(id))
//	// ... AddVertex / AddEdge / SetEntry as before ...
//	cr := pregel.NewCheckpointingRuntime(rt, st)
//	result, err := cr.RunFromCheckpoint(ctx, pregel.LatestCheckpoint)
type CheckpointingRuntime[S WorkflowState[S, U], U Update] struct {
	rt *Runtime[S, U]
	st store.Store[S]
}

// LatestCheckpoint selects the most recent checkpoint in RunFromCheckpoint
// and ResumeFrom.
const LatestCheckpoint = -1

// NewCheckpointingRuntime wraps rt with checkpoint persistence in st.
func NewCheckpointingRuntime[S WorkflowState[S, U], U Update](rt *Runtime[S, U], st store.Store[S]) *CheckpointingRuntime[S, U] {
	return &CheckpointingRuntime[S, U]{rt: rt, st: st}
}

// Runtime returns the wrapped runtime.
func (c *CheckpointingRuntime[S, U]) Runtime() *Runtime[S, U] { return c.rt }

// Run executes the workflow, saving a checkpoint whenever the configured
// interval is due.
func (c *CheckpointingRuntime[S, U]) Run(ctx context.Context) (*Result[S], error) {
	c.rt.afterSuperstep = func(ctx context.Context, superstep int) error {
		if !c.rt.cfg.ShouldCheckpoint(superstep) {
			return nil
		}
		return c.SaveCheckpoint(ctx)
	}
	defer func() { c.rt.afterSuperstep = nil }()

	return c.rt.Run(ctx)
}

// SaveCheckpoint snapshots the runtime and persists it immediately,
// regardless of the checkpoint interval.
func (c *CheckpointingRuntime[S, U]) SaveCheckpoint(ctx context.Context) error {
	cp, err := c.rt.snapshot()
	if err != nil {
		if c.rt.metrics != nil {
			c.rt.metrics.IncCheckpoints(c.rt.workflowID, "failed")
		}
		return err
	}
	if err := c.st.Save(ctx, cp); err != nil {
		if c.rt.metrics != nil {
			c.rt.metrics.IncCheckpoints(c.rt.workflowID, "failed")
		}
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}

	if c.rt.metrics != nil {
		c.rt.metrics.IncCheckpoints(c.rt.workflowID, "saved")
	}
	c.rt.emitter.Emit(emit.Event{
		WorkflowID: c.rt.workflowID,
		Superstep:  cp.Superstep,
		Msg:        "checkpoint_saved",
	})
	return nil
}

// Resume restores the runtime from the latest checkpoint of its workflow.
func (c *CheckpointingRuntime[S, U]) Resume(ctx context.Context) error {
	return c.ResumeFrom(ctx, LatestCheckpoint)
}

// ResumeFrom restores the runtime from the checkpoint at the given
// superstep, or from the latest when superstep is LatestCheckpoint.
func (c *CheckpointingRuntime[S, U]) ResumeFrom(ctx context.Context, superstep int) error {
	var (
		cp  store.Checkpoint[S]
		err error
	)
	if superstep == LatestCheckpoint {
		cp, err = c.st.Latest(ctx, c.rt.workflowID)
	} else {
		cp, err = c.st.Load(ctx, c.rt.workflowID, superstep)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}

	if err := c.rt.restore(cp); err != nil {
		return err
	}

	c.rt.emitter.Emit(emit.Event{
		WorkflowID: c.rt.workflowID,
		Superstep:  cp.Superstep,
		Msg:        "checkpoint_restored",
	})
	return nil
}

// Restore loads an already fetched checkpoint into the runtime. The
// checkpoint's workflow ID must match the runtime's
// (ErrCheckpointMismatch otherwise).
func (c *CheckpointingRuntime[S, U]) Restore(ctx context.Context, cp store.Checkpoint[S]) error {
	return c.rt.restore(cp)
}

// RunFromCheckpoint restores the runtime from a checkpoint and runs it to
// termination. Pass LatestCheckpoint to resume from the most recent save.
func (c *CheckpointingRuntime[S, U]) RunFromCheckpoint(ctx context.Context, superstep int) (*Result[S], error) {
	if err := c.ResumeFrom(ctx, superstep); err != nil {
		return nil, err
	}
	return c.Run(ctx)
}
