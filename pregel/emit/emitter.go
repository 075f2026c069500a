// Package emit provides event emission for workflow observability.
//
// The runtime emits events at superstep boundaries and on vertex lifecycle
// transitions (reactivation, errors, retries, checkpoints). Emitters route
// those events to logs, memory buffers, or OpenTelemetry spans.
package emit

// Emitter receives workflow execution events.
//
// Implementations must be safe for concurrent use: the runtime may emit
// from multiple goroutines during a superstep's compute phase.
//
// Built-in implementations:
//   - LogEmitter: text or JSON lines to an io.Writer
//   - NullEmitter: discards everything
//   - BufferedEmitter: in-memory capture with query support
//   - OTelEmitter: OpenTelemetry spans
type Emitter interface {
	// Emit delivers one event. Emit must not block the caller for long;
	// slow sinks should buffer internally.
	Emit(event Event)
}
