package pregel

import (
	"runtime"
	"time"
)

// ExecutionMode controls how vertices are activated and how edges are used.
type ExecutionMode int

const (
	// ModeMessageBased starts every vertex Active. Vertices drive all
	// communication by sending messages explicitly; edges are stored for
	// visualization but not used for routing.
	ModeMessageBased ExecutionMode = iota

	// ModeEdgeDriven starts only the entry vertex Active and the rest
	// Halted. When a vertex halts, activation messages are automatically
	// sent to its edge targets.
	ModeEdgeDriven
)

// String returns the mode name used in logs.
func (m ExecutionMode) String() string {
	switch m {
	case ModeMessageBased:
		return "message-based"
	case ModeEdgeDriven:
		return "edge-driven"
	default:
		return "unknown"
	}
}

// Config holds the runtime execution settings. Construct it through
// DefaultConfig and the With* options on NewRuntime.
type Config struct {
	// MaxSupersteps bounds the superstep loop before forced termination.
	MaxSupersteps int

	// Parallelism bounds concurrent vertex computations within a
	// superstep.
	Parallelism int

	// CheckpointInterval saves a checkpoint every N supersteps when the
	// runtime is wrapped by a CheckpointingRuntime. Zero disables
	// interval checkpointing.
	CheckpointInterval int

	// VertexTimeout bounds a single vertex computation. Zero disables
	// the per-vertex deadline.
	VertexTimeout time.Duration

	// WorkflowTimeout bounds the whole run. Zero disables the workflow
	// deadline.
	WorkflowTimeout time.Duration

	// TracingEnabled starts an OpenTelemetry span per superstep.
	TracingEnabled bool

	// Retry is the policy applied to failed vertex computations.
	Retry RetryPolicy

	// Mode selects message-based or edge-driven activation.
	Mode ExecutionMode
}

// DefaultConfig returns the standard settings: 100 supersteps, NumCPU
// parallelism, checkpoint every 10 supersteps, 5 minute vertex timeout,
// 1 hour workflow timeout, tracing on, message-based activation.
func DefaultConfig() Config {
	return Config{
		MaxSupersteps:      100,
		Parallelism:        runtime.NumCPU(),
		CheckpointInterval: 10,
		VertexTimeout:      5 * time.Minute,
		WorkflowTimeout:    time.Hour,
		TracingEnabled:     true,
		Retry:              DefaultRetryPolicy(),
		Mode:               ModeMessageBased,
	}
}

// CheckpointingEnabled reports whether interval checkpointing is on.
func (c Config) CheckpointingEnabled() bool {
	return c.CheckpointInterval > 0
}

// ShouldCheckpoint reports whether a checkpoint is due after the given
// superstep. Superstep zero never checkpoints.
func (c Config) ShouldCheckpoint(superstep int) bool {
	return c.CheckpointingEnabled() && superstep > 0 && superstep%c.CheckpointInterval == 0
}
