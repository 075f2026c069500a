package emit

// Event is a single observation from a workflow run.
//
// Msg identifies the event type. The runtime emits:
//
//	workflow_start, workflow_complete, workflow_state,
//	superstep_start, superstep_end,
//	vertex_reactivated, vertex_error, vertex_retry, vertex_failed,
//	message_dropped, messages_dropped,
//	checkpoint_saved, checkpoint_restored
//
// Meta carries event-specific fields (error strings, attempt counts,
// routed message counts). VertexID is empty for workflow- and
// superstep-level events.
type Event struct {
	// WorkflowID identifies the run that produced the event.
	WorkflowID string `json:"workflow_id"`

	// Superstep is the superstep during which the event occurred.
	Superstep int `json:"superstep"`

	// VertexID is the vertex the event concerns, if any.
	VertexID string `json:"vertex_id,omitempty"`

	// Msg is the event type.
	Msg string `json:"msg"`

	// Meta holds event-specific fields.
	Meta map[string]any `json:"meta,omitempty"`
}
