// Package pregel provides a Pregel-style bulk synchronous parallel runtime
// for executing workflows as message-passing vertex graphs.
//
// Execution proceeds in supersteps. At the start of each superstep the
// runtime delivers messages sent during the previous one, reactivates halted
// vertices that received mail, computes all active vertices concurrently,
// applies their merged state updates, and routes their outboxes. The
// workflow terminates when the shared state reports terminal, or when no
// vertex is active and no messages are pending.
package pregel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/pregel-go/pregel/emit"
)

// Edge is a directed connection between two vertices. In edge-driven mode a
// halting vertex automatically activates its edge targets; in message-based
// mode edges are informational (visualization, topology checks).
type Edge struct {
	From  VertexID
	To    VertexID
	Label string
}

// Result summarizes a completed workflow run.
type Result[S any] struct {
	// State is the final workflow state.
	State S

	// Supersteps is the number of supersteps executed.
	Supersteps int

	// Completed reports normal termination.
	Completed bool

	// VertexStates holds the final lifecycle state of every vertex.
	VertexStates map[VertexID]VertexState
}

// Runtime executes a workflow of vertices over shared state S with update
// type U.
//
// Build a runtime with NewRuntime, register vertices and edges, then call
// Run. A Runtime is single-use: Run drives it to termination once.
type Runtime[S WorkflowState[S, U], U Update] struct {
	mu           sync.Mutex
	workflowID   string
	vertices     map[VertexID]Vertex[S, U]
	order        []VertexID
	vertexStates map[VertexID]VertexState
	queues       map[VertexID][]Message
	edges        []Edge
	retryCounts  map[VertexID]int
	entry        VertexID
	state        S
	superstep    int
	restored     bool

	cfg     Config
	emitter emit.Emitter
	metrics *Metrics
	tracer  trace.Tracer

	// afterSuperstep is the checkpoint hook installed by
	// CheckpointingRuntime. Called after each superstep with the new
	// superstep number.
	afterSuperstep func(ctx context.Context, superstep int) error
}

// NewRuntime creates a runtime over the given initial state.
//
// Example:
//
//	rt := pregel.NewRuntime[ChainState, ChainUpdate](ChainState{},
//	    pregel.WithExecutionMode(pregel.ModeEdgeDriven),
//	    pregel.WithMaxSupersteps(20),
//	)
func NewRuntime[S WorkflowState[S, U], U Update](initial S, opts ...Option) *Runtime[S, U] {
	o := runtimeOptions{
		cfg:     DefaultConfig(),
		emitter: emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := o.workflowID
	if id == "" {
		id = uuid.NewString()
	}

	return &Runtime[S, U]{
		workflowID:   id,
		vertices:     make(map[VertexID]Vertex[S, U]),
		vertexStates: make(map[VertexID]VertexState),
		queues:       make(map[VertexID][]Message),
		retryCounts:  make(map[VertexID]int),
		state:        initial,
		cfg:          o.cfg,
		emitter:      o.emitter,
		metrics:      o.metrics,
		tracer:       otel.Tracer("pregel-go"),
	}
}

// AddVertex registers a vertex. Duplicate IDs are rejected.
func (r *Runtime[S, U]) AddVertex(v Vertex[S, U]) error {
	id := v.ID()
	if id == "" {
		return fmt.Errorf("%w: empty vertex id", ErrUnknownVertex)
	}
	if _, exists := r.vertices[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVertex, id)
	}
	r.vertices[id] = v
	r.order = append(r.order, id)
	r.queues[id] = nil
	return nil
}

// AddEdge connects two registered vertices.
func (r *Runtime[S, U]) AddEdge(from, to VertexID) error {
	return r.AddEdgeWithLabel(from, to, "")
}

// AddEdgeWithLabel connects two registered vertices with a display label
// used by Mermaid rendering.
func (r *Runtime[S, U]) AddEdgeWithLabel(from, to VertexID, label string) error {
	if _, ok := r.vertices[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVertex, from)
	}
	if _, ok := r.vertices[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVertex, to)
	}
	r.edges = append(r.edges, Edge{From: from, To: to, Label: label})
	return nil
}

// SetEntry selects the vertex that starts Active in edge-driven mode.
func (r *Runtime[S, U]) SetEntry(id VertexID) error {
	if _, ok := r.vertices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVertex, id)
	}
	r.entry = id
	return nil
}

// WorkflowID returns the workflow identifier.
func (r *Runtime[S, U]) WorkflowID() string { return r.workflowID }

// State returns the current shared state.
func (r *Runtime[S, U]) State() S { return r.state }

// Superstep returns the current superstep counter.
func (r *Runtime[S, U]) Superstep() int { return r.superstep }

// VertexStates returns a copy of the current vertex lifecycle states.
func (r *Runtime[S, U]) VertexStates() map[VertexID]VertexState {
	out := make(map[VertexID]VertexState, len(r.vertexStates))
	for id, st := range r.vertexStates {
		out[id] = st
	}
	return out
}

// Run executes the workflow to termination.
//
// Run returns ErrMaxSuperstepsExceeded past the superstep cap,
// ErrWorkflowTimeout when the workflow deadline expires, ErrCancelled when
// the caller's context is cancelled, and vertex failures wrapped in
// ErrMaxRetriesExceeded once the retry budget is spent.
func (r *Runtime[S, U]) Run(ctx context.Context) (*Result[S], error) {
	if len(r.order) == 0 {
		return nil, ErrNoVertices
	}
	if r.cfg.Mode == ModeEdgeDriven && r.entry == "" {
		return nil, ErrNoEntryVertex
	}
	if !r.restored {
		r.initVertexStates()
	}

	runCtx := ctx
	if r.cfg.WorkflowTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.WorkflowTimeout)
		defer cancel()
	}

	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  r.superstep,
		Msg:        "workflow_start",
		Meta: map[string]any{
			"mode":     r.cfg.Mode.String(),
			"vertices": len(r.order),
		},
	})

	if r.state.IsTerminal() {
		return r.finish(), nil
	}

	for r.superstep < r.cfg.MaxSupersteps {
		if err := runCtx.Err(); err != nil {
			return nil, r.translateCtxErr(ctx, err)
		}

		active := r.deliverMessages()
		if len(active) == 0 && r.queuesEmpty() {
			return r.finish(), nil
		}

		if err := r.runSuperstep(runCtx, active); err != nil {
			if cerr := runCtx.Err(); cerr != nil {
				return nil, r.translateCtxErr(ctx, cerr)
			}
			return nil, err
		}
		r.superstep++

		if r.afterSuperstep != nil {
			if err := r.afterSuperstep(runCtx, r.superstep); err != nil {
				return nil, err
			}
		}

		if r.state.IsTerminal() {
			return r.finish(), nil
		}
	}

	return nil, fmt.Errorf("%w: limit %d", ErrMaxSuperstepsExceeded, r.cfg.MaxSupersteps)
}

// initVertexStates applies the execution mode's initial activation.
func (r *Runtime[S, U]) initVertexStates() {
	for _, id := range r.order {
		switch r.cfg.Mode {
		case ModeEdgeDriven:
			if id == r.entry {
				r.vertexStates[id] = StateActive
			} else {
				r.vertexStates[id] = StateHalted
			}
		default:
			r.vertexStates[id] = StateActive
		}
	}
}

// inboxEntry pairs a vertex due to compute with its drained inbox.
type inboxEntry struct {
	id   VertexID
	msgs []Message
}

// deliverMessages performs the delivery phase: queues of completed vertices
// are dropped, halted vertices with mail wake up, and active vertices drain
// their inboxes. Returns the active set in registration order.
func (r *Runtime[S, U]) deliverMessages() []inboxEntry {
	for _, id := range r.order {
		q := r.queues[id]
		if len(q) == 0 {
			continue
		}
		switch r.vertexStates[id] {
		case StateCompleted:
			r.queues[id] = nil
			r.emitVertex(id, "messages_dropped", map[string]any{
				"count":  len(q),
				"reason": "vertex_completed",
			})
		case StateHalted:
			// Any mail wakes a halted vertex, subject to its
			// Reactivator hook.
			next := StateActive
			if re, ok := r.vertices[id].(Reactivator); ok {
				next = re.OnReactivation()
			}
			r.vertexStates[id] = next
			if next != StateActive {
				// The hook declined to wake; the mail must not keep the
				// workflow alive.
				r.queues[id] = nil
				r.emitVertex(id, "messages_dropped", map[string]any{
					"count":  len(q),
					"reason": "reactivation_declined",
				})
			}
			r.emitVertex(id, "vertex_reactivated", map[string]any{
				"state": next.String(),
			})
		}
	}

	var active []inboxEntry
	for _, id := range r.order {
		if r.vertexStates[id] != StateActive {
			continue
		}
		msgs := r.queues[id]
		r.queues[id] = nil
		active = append(active, inboxEntry{id: id, msgs: msgs})
	}
	return active
}

func (r *Runtime[S, U]) queuesEmpty() bool {
	for _, q := range r.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// computeOutcome is the per-vertex result of one superstep's compute phase.
type computeOutcome[U Update] struct {
	res    ComputeResult[U]
	outbox []Envelope
	err    error
}

// runSuperstep computes all active vertices concurrently, applies their
// merged updates, transitions vertex states, and routes outbound messages.
func (r *Runtime[S, U]) runSuperstep(ctx context.Context, active []inboxEntry) error {
	sstep := r.superstep

	if r.cfg.TracingEnabled {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "pregel.superstep", trace.WithAttributes(
			attribute.String("pregel.workflow_id", r.workflowID),
			attribute.Int("pregel.superstep", sstep),
			attribute.Int("pregel.active_vertices", len(active)),
		))
		defer span.End()
	}

	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  sstep,
		Msg:        "superstep_start",
		Meta:       map[string]any{"active": len(active)},
	})
	if r.metrics != nil {
		r.metrics.SetActiveVertices(len(active))
	}

	outcomes := make([]computeOutcome[U], len(active))
	sem := make(chan struct{}, r.cfg.Parallelism)
	var wg sync.WaitGroup
	for i, entry := range active {
		wg.Add(1)
		go func(i int, entry inboxEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res, outbox, err := r.executeVertex(ctx, entry.id, entry.msgs)
			outcomes[i] = computeOutcome[U]{res: res, outbox: outbox, err: err}
		}(i, entry)
	}
	wg.Wait()

	// Surface the first failure in registration order so errors are
	// deterministic under concurrency.
	for i, out := range outcomes {
		if out.err != nil {
			r.emitVertex(active[i].id, "vertex_failed", map[string]any{
				"error": out.err.Error(),
			})
			return out.err
		}
	}

	updates := make([]U, 0, len(outcomes))
	for _, out := range outcomes {
		if !out.res.Update.IsEmpty() {
			updates = append(updates, out.res.Update)
		}
	}
	r.state = applyUpdates(r.state, updates)

	routed := 0
	for i, entry := range active {
		out := outcomes[i]
		r.vertexStates[entry.id] = out.res.State

		for _, env := range out.outbox {
			if _, ok := r.vertices[env.To]; !ok {
				r.emitVertex(entry.id, "message_dropped", map[string]any{
					"to":     string(env.To),
					"reason": "unknown_vertex",
				})
				continue
			}
			r.queues[env.To] = append(r.queues[env.To], env.Msg)
			routed++
		}

		if r.cfg.Mode == ModeEdgeDriven && out.res.State == StateHalted {
			for _, e := range r.edges {
				if e.From != entry.id {
					continue
				}
				r.queues[e.To] = append(r.queues[e.To], Activate())
				routed++
			}
		}
	}

	if r.metrics != nil {
		r.metrics.AddMessagesRouted(routed)
		r.metrics.SetQueueDepth(r.pendingMessageCount())
	}
	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  sstep,
		Msg:        "superstep_end",
		Meta:       map[string]any{"routed": routed},
	})
	return nil
}

// executeVertex runs one vertex's computation with the per-vertex timeout
// and the retry policy. Retry counts persist across supersteps and reset on
// the first success. Errors wrapped with Fatal are never retried.
func (r *Runtime[S, U]) executeVertex(ctx context.Context, id VertexID, inbox []Message) (ComputeResult[U], []Envelope, error) {
	var zero ComputeResult[U]
	v := r.vertices[id]

	if c, ok := v.(MessageCombiner); ok {
		inbox = c.CombineMessages(inbox)
	}

	for {
		r.mu.Lock()
		attempt := r.retryCounts[id]
		r.mu.Unlock()

		cc := newComputeContext(id, r.superstep, r.state, inbox)
		start := time.Now()
		res, err := r.computeWithTimeout(ctx, v, cc)
		latency := time.Since(start)

		if err == nil {
			r.mu.Lock()
			delete(r.retryCounts, id)
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.RecordComputeLatency(r.workflowID, string(id), latency, "success")
			}
			return res, cc.intoOutbox(), nil
		}

		status := "error"
		if errors.Is(err, ErrVertexTimeout) {
			status = "timeout"
		}
		if r.metrics != nil {
			r.metrics.RecordComputeLatency(r.workflowID, string(id), latency, status)
		}
		r.emitVertex(id, "vertex_error", map[string]any{
			"error":   err.Error(),
			"attempt": attempt,
		})

		if ctx.Err() != nil {
			return zero, nil, newVertexError(id, "computation aborted", err)
		}

		// Fatal failures skip the retry policy entirely.
		if errors.Is(err, ErrNonRecoverable) {
			return zero, nil, newVertexError(id, "non-recoverable failure", err)
		}

		r.mu.Lock()
		r.retryCounts[id]++
		attempts := r.retryCounts[id]
		r.mu.Unlock()

		// attempt counts the retries already consumed before this
		// failure, so MaxRetries=N allows N+1 computations in total.
		if !r.cfg.Retry.ShouldRetry(attempt) {
			return zero, nil, fmt.Errorf("%w: vertex %s: %d attempts: %w",
				ErrMaxRetriesExceeded, id, attempts, err)
		}

		delay := r.cfg.Retry.DelayForAttempt(attempt)
		if r.metrics != nil {
			r.metrics.IncRetries(r.workflowID, string(id), status)
		}
		r.emitVertex(id, "vertex_retry", map[string]any{
			"attempt": attempts,
			"delay":   delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, nil, newVertexError(id, "computation aborted", ctx.Err())
		case <-timer.C:
		}
	}
}

// computeWithTimeout invokes Compute under the per-vertex deadline. The
// computation runs in its own goroutine so a vertex that ignores ctx still
// cannot block the superstep past its deadline.
func (r *Runtime[S, U]) computeWithTimeout(ctx context.Context, v Vertex[S, U], cc *ComputeContext[S]) (ComputeResult[U], error) {
	if r.cfg.VertexTimeout <= 0 {
		return v.Compute(ctx, cc)
	}

	vctx, cancel := context.WithTimeout(ctx, r.cfg.VertexTimeout)
	defer cancel()

	type outcome struct {
		res ComputeResult[U]
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := v.Compute(vctx, cc)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) &&
			vctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return out.res, fmt.Errorf("%w: %s after %s", ErrVertexTimeout, cc.VertexID(), r.cfg.VertexTimeout)
		}
		return out.res, out.err
	case <-vctx.Done():
		var zero ComputeResult[U]
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w: %s after %s", ErrVertexTimeout, cc.VertexID(), r.cfg.VertexTimeout)
	}
}

// translateCtxErr maps context errors to the workflow error taxonomy: the
// runtime's own deadline becomes ErrWorkflowTimeout, everything initiated
// by the caller becomes ErrCancelled.
func (r *Runtime[S, U]) translateCtxErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: after %s", ErrWorkflowTimeout, r.cfg.WorkflowTimeout)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}

func (r *Runtime[S, U]) pendingMessageCount() int {
	n := 0
	for _, q := range r.queues {
		n += len(q)
	}
	return n
}

func (r *Runtime[S, U]) finish() *Result[S] {
	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  r.superstep,
		Msg:        "workflow_complete",
		Meta:       map[string]any{"supersteps": r.superstep},
	})
	if r.metrics != nil {
		r.metrics.SetActiveVertices(0)
		r.metrics.SetQueueDepth(0)
	}
	return &Result[S]{
		State:        r.state,
		Supersteps:   r.superstep,
		Completed:    true,
		VertexStates: r.VertexStates(),
	}
}

func (r *Runtime[S, U]) emitVertex(id VertexID, msg string, meta map[string]any) {
	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  r.superstep,
		VertexID:   string(id),
		Msg:        msg,
		Meta:       meta,
	})
}
