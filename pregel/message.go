package pregel

// MessageKind discriminates the built-in workflow message variants.
type MessageKind int

const (
	// KindActivate wakes a halted vertex without carrying a payload.
	KindActivate MessageKind = iota

	// KindData carries a keyed payload between vertices.
	KindData

	// KindCompleted announces that the source vertex finished, with an
	// optional result payload.
	KindCompleted

	// KindHalt asks the receiving vertex to halt. The runtime delivers
	// it like any other message; honoring the request is up to the
	// vertex.
	KindHalt
)

// String returns the kind name used in logs and events.
func (k MessageKind) String() string {
	switch k {
	case KindActivate:
		return "activate"
	case KindData:
		return "data"
	case KindCompleted:
		return "completed"
	case KindHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Message is the unit of communication between vertices. Messages sent during
// superstep N are delivered at the start of superstep N+1.
//
// Message is a concrete JSON-serializable struct rather than an interface so
// that pending queues can round-trip through checkpoints. Payload fields use
// `any`; after a checkpoint restore they hold generic JSON values (maps,
// slices, float64, string).
type Message struct {
	Kind   MessageKind `json:"kind"`
	Key    string      `json:"key,omitempty"`
	Value  any         `json:"value,omitempty"`
	Source VertexID    `json:"source,omitempty"`
	Result any         `json:"result,omitempty"`
}

// Activate returns a bare activation message.
func Activate() Message {
	return Message{Kind: KindActivate}
}

// NewData returns a data message carrying a keyed payload.
func NewData(key string, value any) Message {
	return Message{Kind: KindData, Key: key, Value: value}
}

// NewCompleted returns a completion announcement from source.
func NewCompleted(source VertexID, result any) Message {
	return Message{Kind: KindCompleted, Source: source, Result: result}
}

// NewHalt returns a halt request.
func NewHalt() Message {
	return Message{Kind: KindHalt}
}

// Envelope pairs an outbound message with its destination. Vertices fill
// envelopes through the ComputeContext outbox; the runtime routes them after
// the superstep's compute phase.
type Envelope struct {
	To  VertexID `json:"to"`
	Msg Message  `json:"msg"`
}
