package pregel

import "context"

// VertexID uniquely identifies a vertex within a workflow.
type VertexID string

// VertexState is the lifecycle state of a vertex between supersteps.
type VertexState int

const (
	// StateActive vertices compute in the next superstep.
	StateActive VertexState = iota

	// StateHalted vertices skip computation until a message arrives.
	StateHalted

	// StateCompleted vertices never compute again. Messages addressed to
	// them are dropped at delivery.
	StateCompleted
)

// String returns the lowercase state name used in logs and checkpoints.
func (s VertexState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHalted:
		return "halted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseVertexState converts a checkpointed state name back to a VertexState.
func ParseVertexState(s string) (VertexState, bool) {
	switch s {
	case "active":
		return StateActive, true
	case "halted":
		return StateHalted, true
	case "completed":
		return StateCompleted, true
	default:
		return StateActive, false
	}
}

// Vertex is a unit of computation in a workflow. Implementations read the
// shared state and their inbox through the ComputeContext, queue outbound
// messages on its outbox, and return a state update plus their next
// lifecycle state.
//
// Compute must respect ctx: the runtime cancels it when the per-vertex or
// workflow deadline expires.
type Vertex[S WorkflowState[S, U], U Update] interface {
	// ID returns the vertex identifier. Must be stable and unique within
	// a runtime.
	ID() VertexID

	// Compute performs one superstep of work.
	Compute(ctx context.Context, cc *ComputeContext[S]) (ComputeResult[U], error)
}

// Reactivator is an optional Vertex extension controlling which state a
// halted vertex wakes into when mail arrives. Vertices that do not implement
// it reactivate into StateActive. Returning a non-active state drops the
// pending mail.
type Reactivator interface {
	OnReactivation() VertexState
}

// MessageCombiner is an optional Vertex extension that pre-processes the
// inbox before delivery, for example deduplicating or aggregating messages.
// Vertices that do not implement it receive the inbox unchanged.
type MessageCombiner interface {
	CombineMessages(msgs []Message) []Message
}

// ComputeResult is what a vertex returns from one superstep: a state update
// and the lifecycle state it transitions into.
type ComputeResult[U Update] struct {
	Update U
	State  VertexState
}

// Active returns a result that keeps the vertex computing next superstep.
func Active[U Update](update U) ComputeResult[U] {
	return ComputeResult[U]{Update: update, State: StateActive}
}

// Halt returns a result that parks the vertex until a message arrives.
func Halt[U Update](update U) ComputeResult[U] {
	return ComputeResult[U]{Update: update, State: StateHalted}
}

// Complete returns a result that permanently retires the vertex.
func Complete[U Update](update U) ComputeResult[U] {
	return ComputeResult[U]{Update: update, State: StateCompleted}
}

// ComputeContext is the vertex's window into one superstep: a read-only view
// of the shared state and inbox, and a write-only outbox.
//
// The context is only valid for the duration of a single Compute call.
type ComputeContext[S any] struct {
	vertexID  VertexID
	superstep int
	state     S
	messages  []Message
	outbox    []Envelope
}

func newComputeContext[S any](id VertexID, superstep int, state S, msgs []Message) *ComputeContext[S] {
	return &ComputeContext[S]{
		vertexID:  id,
		superstep: superstep,
		state:     state,
		messages:  msgs,
	}
}

// VertexID returns the identity of the computing vertex.
func (c *ComputeContext[S]) VertexID() VertexID { return c.vertexID }

// Superstep returns the zero-based superstep number.
func (c *ComputeContext[S]) Superstep() int { return c.superstep }

// State returns the shared workflow state as of the start of the superstep.
// Vertices must treat it as read-only; changes flow through ComputeResult
// updates.
func (c *ComputeContext[S]) State() S { return c.state }

// Messages returns the inbox delivered for this superstep.
func (c *ComputeContext[S]) Messages() []Message { return c.messages }

// IsFirstSuperstep reports whether this is superstep zero.
func (c *ComputeContext[S]) IsFirstSuperstep() bool { return c.superstep == 0 }

// HasMessages reports whether the inbox is non-empty.
func (c *ComputeContext[S]) HasMessages() bool { return len(c.messages) > 0 }

// MessageCount returns the inbox size.
func (c *ComputeContext[S]) MessageCount() int { return len(c.messages) }

// Send queues a message for delivery to the target vertex at the start of
// the next superstep.
func (c *ComputeContext[S]) Send(to VertexID, msg Message) {
	c.outbox = append(c.outbox, Envelope{To: to, Msg: msg})
}

// Broadcast queues the same message for every target.
func (c *ComputeContext[S]) Broadcast(targets []VertexID, msg Message) {
	for _, t := range targets {
		c.Send(t, msg)
	}
}

// intoOutbox hands the accumulated envelopes to the runtime.
func (c *ComputeContext[S]) intoOutbox() []Envelope { return c.outbox }

// VertexFunc adapts a plain function to the Vertex interface for simple
// vertices that don't need their own type.
//
// Example:
//
//	double := pregel.NewVertexFunc("double", func(ctx context.Context, cc *pregel.ComputeContext[CounterState]) (pregel.ComputeResult[CounterUpdate], error) {
//	    return pregel.Halt(CounterUpdate{Delta: cc.State().Count}), nil
//	})
type VertexFunc[S WorkflowState[S, U], U Update] struct {
	id VertexID
	fn func(ctx context.Context, cc *ComputeContext[S]) (ComputeResult[U], error)
}

// NewVertexFunc wraps fn as a Vertex with the given ID.
func NewVertexFunc[S WorkflowState[S, U], U Update](id VertexID, fn func(ctx context.Context, cc *ComputeContext[S]) (ComputeResult[U], error)) *VertexFunc[S, U] {
	return &VertexFunc[S, U]{id: id, fn: fn}
}

// ID returns the vertex identifier.
func (v *VertexFunc[S, U]) ID() VertexID { return v.id }

// Compute invokes the wrapped function.
func (v *VertexFunc[S, U]) Compute(ctx context.Context, cc *ComputeContext[S]) (ComputeResult[U], error) {
	return v.fn(ctx, cc)
}
