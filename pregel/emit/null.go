package emit

// NullEmitter implements Emitter by discarding all events.
//
// This is the runtime's default emitter. Use it explicitly when event
// emission should be disabled without changing code paths.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter. Safe for concurrent use with zero
// overhead.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
