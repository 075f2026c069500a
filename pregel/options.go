package pregel

import (
	"time"

	"github.com/dshills/pregel-go/pregel/emit"
)

// Option configures a Runtime at construction time.
//
// Options follow the functional options pattern:
//
//	rt := pregel.NewRuntime[MyState, MyUpdate](initial,
//	    pregel.WithMaxSupersteps(50),
//	    pregel.WithExecutionMode(pregel.ModeEdgeDriven),
//	    pregel.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*runtimeOptions)

type runtimeOptions struct {
	cfg        Config
	workflowID string
	emitter    emit.Emitter
	metrics    *Metrics
}

// WithMaxSupersteps bounds the superstep loop. Values below 1 are ignored.
func WithMaxSupersteps(max int) Option {
	return func(o *runtimeOptions) {
		if max >= 1 {
			o.cfg.MaxSupersteps = max
		}
	}
}

// WithParallelism bounds concurrent vertex computations. Values below 1 are
// clamped to 1.
func WithParallelism(n int) Option {
	return func(o *runtimeOptions) {
		if n < 1 {
			n = 1
		}
		o.cfg.Parallelism = n
	}
}

// WithCheckpointInterval saves a checkpoint every n supersteps when running
// under a CheckpointingRuntime. Zero disables interval checkpointing.
func WithCheckpointInterval(n int) Option {
	return func(o *runtimeOptions) {
		if n >= 0 {
			o.cfg.CheckpointInterval = n
		}
	}
}

// WithVertexTimeout bounds a single vertex computation. Zero disables the
// deadline.
func WithVertexTimeout(d time.Duration) Option {
	return func(o *runtimeOptions) {
		if d >= 0 {
			o.cfg.VertexTimeout = d
		}
	}
}

// WithWorkflowTimeout bounds the whole run. Zero disables the deadline.
func WithWorkflowTimeout(d time.Duration) Option {
	return func(o *runtimeOptions) {
		if d >= 0 {
			o.cfg.WorkflowTimeout = d
		}
	}
}

// WithTracing enables or disables the per-superstep OpenTelemetry span.
func WithTracing(enabled bool) Option {
	return func(o *runtimeOptions) {
		o.cfg.TracingEnabled = enabled
	}
}

// WithRetryPolicy sets the retry policy for failed vertex computations.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *runtimeOptions) {
		o.cfg.Retry = p
	}
}

// WithExecutionMode selects message-based or edge-driven activation.
func WithExecutionMode(mode ExecutionMode) Option {
	return func(o *runtimeOptions) {
		o.cfg.Mode = mode
	}
}

// WithWorkflowID pins the workflow identifier instead of generating a
// random UUID. Required when resuming from checkpoints, since a checkpoint
// only restores into a runtime with a matching ID.
func WithWorkflowID(id string) Option {
	return func(o *runtimeOptions) {
		if id != "" {
			o.workflowID = id
		}
	}
}

// WithConfig replaces the whole configuration at once. Later options still
// apply on top of it.
func WithConfig(cfg Config) Option {
	return func(o *runtimeOptions) {
		if cfg.Parallelism < 1 {
			cfg.Parallelism = 1
		}
		o.cfg = cfg
	}
}

// WithEmitter routes runtime events (superstep boundaries, vertex errors,
// retries, checkpoints) to the given emitter. Defaults to a NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *runtimeOptions) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithMetrics records Prometheus metrics during execution.
func WithMetrics(m *Metrics) Option {
	return func(o *runtimeOptions) {
		o.metrics = m
	}
}
