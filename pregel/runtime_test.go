package pregel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/pregel-go/pregel/emit"
)

// logState records which vertices ran and in what order, and carries a done
// flag for terminal-state tests.
type logState struct {
	Log  []string `json:"log"`
	Done bool     `json:"done"`
}

type logUpdate struct {
	Append []string `json:"append"`
	Done   bool     `json:"done"`
}

func (u logUpdate) IsEmpty() bool { return len(u.Append) == 0 && !u.Done }

func (s logState) ApplyUpdate(u logUpdate) logState {
	out := logState{Done: s.Done || u.Done}
	out.Log = append(out.Log, s.Log...)
	out.Log = append(out.Log, u.Append...)
	return out
}

func (s logState) MergeUpdates(updates []logUpdate) logUpdate {
	var merged logUpdate
	for _, u := range updates {
		merged.Append = append(merged.Append, u.Append...)
		merged.Done = merged.Done || u.Done
	}
	return merged
}

func (s logState) IsTerminal() bool { return s.Done }

// appendVertex appends its own ID to the log and halts.
func appendVertex(id VertexID) *VertexFunc[logState, logUpdate] {
	return NewVertexFunc[logState, logUpdate](id,
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			return Halt(logUpdate{Append: []string{string(id)}}), nil
		})
}

func mustAdd[S WorkflowState[S, U], U Update](t *testing.T, rt *Runtime[S, U], v Vertex[S, U]) {
	t.Helper()
	if err := rt.AddVertex(v); err != nil {
		t.Fatalf("AddVertex(%s) error = %v", v.ID(), err)
	}
}

func mustConnect[S WorkflowState[S, U], U Update](t *testing.T, rt *Runtime[S, U], from, to VertexID) {
	t.Helper()
	if err := rt.AddEdge(from, to); err != nil {
		t.Fatalf("AddEdge(%s, %s) error = %v", from, to, err)
	}
}

func TestRuntime_LinearChainEdgeDriven(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithExecutionMode(ModeEdgeDriven),
		WithWorkflowID("wf-chain"),
	)
	for _, id := range []VertexID{"a", "b", "c"} {
		mustAdd(t, rt, appendVertex(id))
	}
	mustConnect(t, rt, "a", "b")
	mustConnect(t, rt, "b", "c")
	if err := rt.SetEntry("a"); err != nil {
		t.Fatalf("SetEntry() error = %v", err)
	}

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(result.State.Log) != len(want) {
		t.Fatalf("log = %v, want %v", result.State.Log, want)
	}
	for i, id := range want {
		if result.State.Log[i] != id {
			t.Errorf("log[%d] = %q, want %q", i, result.State.Log[i], id)
		}
	}
	if !result.Completed {
		t.Error("result should be completed")
	}
	if result.Supersteps != 3 {
		t.Errorf("supersteps = %d, want 3", result.Supersteps)
	}
	for id, st := range result.VertexStates {
		if st != StateHalted {
			t.Errorf("vertex %s state = %v, want halted", id, st)
		}
	}
}

func TestRuntime_MessageBased(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	sender := NewVertexFunc[logState, logUpdate]("sender",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("receiver", NewData("greeting", "hello"))
			return Halt(logUpdate{}), nil
		})
	receiver := NewVertexFunc[logState, logUpdate]("receiver",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			if !cc.HasMessages() {
				return Halt(logUpdate{}), nil
			}
			var got []string
			for _, m := range cc.Messages() {
				if m.Kind == KindData {
					got = append(got, fmt.Sprintf("got:%v", m.Value))
				}
			}
			return Halt(logUpdate{Append: got}), nil
		})

	mustAdd(t, rt, sender)
	mustAdd(t, rt, receiver)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.State.Log) != 1 || result.State.Log[0] != "got:hello" {
		t.Errorf("log = %v, want [got:hello]", result.State.Log)
	}
	if result.Supersteps != 2 {
		t.Errorf("supersteps = %d, want 2", result.Supersteps)
	}
}

func TestRuntime_NoVertices(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})
	if _, err := rt.Run(context.Background()); !errors.Is(err, ErrNoVertices) {
		t.Errorf("Run() error = %v, want ErrNoVertices", err)
	}
}

func TestRuntime_EdgeDrivenRequiresEntry(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithExecutionMode(ModeEdgeDriven))
	mustAdd(t, rt, appendVertex("a"))

	if _, err := rt.Run(context.Background()); !errors.Is(err, ErrNoEntryVertex) {
		t.Errorf("Run() error = %v, want ErrNoEntryVertex", err)
	}
}

func TestRuntime_DuplicateVertex(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})
	mustAdd(t, rt, appendVertex("a"))

	if err := rt.AddVertex(appendVertex("a")); !errors.Is(err, ErrDuplicateVertex) {
		t.Errorf("AddVertex() error = %v, want ErrDuplicateVertex", err)
	}
}

func TestRuntime_EdgeValidation(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})
	mustAdd(t, rt, appendVertex("a"))

	if err := rt.AddEdge("a", "missing"); !errors.Is(err, ErrUnknownVertex) {
		t.Errorf("AddEdge() error = %v, want ErrUnknownVertex", err)
	}
	if err := rt.AddEdge("missing", "a"); !errors.Is(err, ErrUnknownVertex) {
		t.Errorf("AddEdge() error = %v, want ErrUnknownVertex", err)
	}
	if err := rt.SetEntry("missing"); !errors.Is(err, ErrUnknownVertex) {
		t.Errorf("SetEntry() error = %v, want ErrUnknownVertex", err)
	}
}

func TestRuntime_MaxSuperstepsExceeded(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithMaxSupersteps(5))

	spinner := NewVertexFunc[logState, logUpdate]("spinner",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			return Active(logUpdate{}), nil
		})
	mustAdd(t, rt, spinner)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrMaxSuperstepsExceeded) {
		t.Errorf("Run() error = %v, want ErrMaxSuperstepsExceeded", err)
	}
}

func TestRuntime_TerminalStateStops(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithMaxSupersteps(100))

	var steps atomic.Int32
	v := NewVertexFunc[logState, logUpdate]("worker",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			if steps.Add(1) >= 3 {
				return Active(logUpdate{Done: true}), nil
			}
			return Active(logUpdate{}), nil
		})
	mustAdd(t, rt, v)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Completed || !result.State.Done {
		t.Error("terminal state should complete the run")
	}
	if result.Supersteps != 3 {
		t.Errorf("supersteps = %d, want 3", result.Supersteps)
	}
	// The vertex never halted; termination came from the state alone.
	if result.VertexStates["worker"] != StateActive {
		t.Errorf("worker state = %v, want active", result.VertexStates["worker"])
	}
}

func TestRuntime_InitiallyTerminalState(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{Done: true})
	mustAdd(t, rt, appendVertex("a"))

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Supersteps != 0 {
		t.Errorf("supersteps = %d, want 0", result.Supersteps)
	}
	if len(result.State.Log) != 0 {
		t.Errorf("no vertex should have computed, log = %v", result.State.Log)
	}
}

func TestRuntime_FanOutFanIn(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithParallelism(3))

	workers := []VertexID{"w1", "w2", "w3"}

	root := NewVertexFunc[logState, logUpdate]("root",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			for _, w := range workers {
				cc.Send(w, NewData("task", string(w)))
			}
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, root)

	for _, w := range workers {
		id := w
		mustAdd(t, rt, NewVertexFunc[logState, logUpdate](id,
			func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
				if !cc.HasMessages() {
					return Halt(logUpdate{}), nil
				}
				cc.Send("sink", NewCompleted(id, "done-"+string(id)))
				return Halt(logUpdate{}), nil
			}))
	}

	sink := NewVertexFunc[logState, logUpdate]("sink",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			if !cc.HasMessages() {
				return Halt(logUpdate{}), nil
			}
			var results []string
			for _, m := range cc.Messages() {
				if m.Kind == KindCompleted {
					results = append(results, fmt.Sprintf("%v", m.Result))
				}
			}
			sort.Strings(results)
			return Complete(logUpdate{Append: results, Done: true}), nil
		})
	mustAdd(t, rt, sink)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"done-w1", "done-w2", "done-w3"}
	if len(result.State.Log) != len(want) {
		t.Fatalf("log = %v, want %v", result.State.Log, want)
	}
	for i, r := range want {
		if result.State.Log[i] != r {
			t.Errorf("log[%d] = %q, want %q", i, result.State.Log[i], r)
		}
	}
	if result.VertexStates["sink"] != StateCompleted {
		t.Errorf("sink state = %v, want completed", result.VertexStates["sink"])
	}
}

func TestRuntime_RetryExhaustion(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}),
	)

	var calls atomic.Int32
	failing := NewVertexFunc[logState, logUpdate]("flaky",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			calls.Add(1)
			return ComputeResult[logUpdate]{}, errors.New("boom")
		})
	mustAdd(t, rt, failing)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("Run() error = %v, want ErrMaxRetriesExceeded", err)
	}
	// The initial attempt plus MaxRetries retries.
	if got := calls.Load(); got != 3 {
		t.Errorf("compute calls = %d, want 3", got)
	}
}

func TestRuntime_NonRecoverableFailsFast(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}),
	)

	var calls atomic.Int32
	broken := NewVertexFunc[logState, logUpdate]("broken",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			calls.Add(1)
			return ComputeResult[logUpdate]{}, Fatal(errors.New("invalid credentials"))
		})
	mustAdd(t, rt, broken)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrNonRecoverable) {
		t.Fatalf("Run() error = %v, want ErrNonRecoverable", err)
	}
	if errors.Is(err, ErrMaxRetriesExceeded) {
		t.Error("fatal failures should not be reported as retry exhaustion")
	}
	var verr *VertexError
	if !errors.As(err, &verr) || verr.VertexID != "broken" {
		t.Errorf("error should identify the failing vertex: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("compute calls = %d, want 1", got)
	}
	if len(rt.retryCounts) != 0 {
		t.Errorf("retry counts = %v, fatal failure should not consume the budget", rt.retryCounts)
	}
}

func TestRuntime_NoRetryFailsFast(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithRetryPolicy(NoRetry()))

	var calls atomic.Int32
	failing := NewVertexFunc[logState, logUpdate]("flaky",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			calls.Add(1)
			return ComputeResult[logUpdate]{}, errors.New("boom")
		})
	mustAdd(t, rt, failing)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("Run() error = %v, want ErrMaxRetriesExceeded", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("compute calls = %d, want 1", got)
	}
}

func TestRuntime_RetryRecovers(t *testing.T) {
	// Two failures spend the whole budget; the final retry succeeds.
	rt := NewRuntime[logState, logUpdate](logState{},
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}),
	)

	var calls atomic.Int32
	flaky := NewVertexFunc[logState, logUpdate]("flaky",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			if calls.Add(1) < 3 {
				return ComputeResult[logUpdate]{}, errors.New("transient")
			}
			return Halt(logUpdate{Append: []string{"ok"}}), nil
		})
	mustAdd(t, rt, flaky)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("compute calls = %d, want 3", got)
	}
	if len(result.State.Log) != 1 || result.State.Log[0] != "ok" {
		t.Errorf("log = %v, want [ok]", result.State.Log)
	}
}

func TestRuntime_VertexTimeout(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithVertexTimeout(20*time.Millisecond),
		WithRetryPolicy(NoRetry()),
	)

	slow := NewVertexFunc[logState, logUpdate]("slow",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			select {
			case <-ctx.Done():
				return ComputeResult[logUpdate]{}, ctx.Err()
			case <-time.After(time.Second):
				return Halt(logUpdate{}), nil
			}
		})
	mustAdd(t, rt, slow)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrVertexTimeout) {
		t.Errorf("Run() error = %v, want ErrVertexTimeout", err)
	}
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Run() error = %v, should also wrap ErrMaxRetriesExceeded", err)
	}
}

func TestRuntime_WorkflowTimeout(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithWorkflowTimeout(50*time.Millisecond),
		WithVertexTimeout(0),
		WithRetryPolicy(NoRetry()),
	)

	busy := NewVertexFunc[logState, logUpdate]("busy",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			select {
			case <-ctx.Done():
				return ComputeResult[logUpdate]{}, ctx.Err()
			case <-time.After(10 * time.Millisecond):
				return Active(logUpdate{}), nil
			}
		})
	mustAdd(t, rt, busy)

	_, err := rt.Run(context.Background())
	if !errors.Is(err, ErrWorkflowTimeout) {
		t.Errorf("Run() error = %v, want ErrWorkflowTimeout", err)
	}
}

func TestRuntime_Cancelled(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithVertexTimeout(0),
		WithRetryPolicy(NoRetry()),
	)

	busy := NewVertexFunc[logState, logUpdate]("busy",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			select {
			case <-ctx.Done():
				return ComputeResult[logUpdate]{}, ctx.Err()
			case <-time.After(10 * time.Millisecond):
				return Active(logUpdate{}), nil
			}
		})
	mustAdd(t, rt, busy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := rt.Run(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Run() error = %v, want ErrCancelled", err)
	}
}

func TestRuntime_CompletedVertexDropsMail(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	finisher := NewVertexFunc[logState, logUpdate]("finisher",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			return Complete(logUpdate{Append: []string{"finisher"}}), nil
		})
	nagger := NewVertexFunc[logState, logUpdate]("nagger",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("finisher", NewData("nag", true))
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, finisher)
	mustAdd(t, rt, nagger)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The finisher computed exactly once; the nag was dropped.
	if len(result.State.Log) != 1 {
		t.Errorf("log = %v, want single finisher entry", result.State.Log)
	}
	if result.VertexStates["finisher"] != StateCompleted {
		t.Errorf("finisher state = %v, want completed", result.VertexStates["finisher"])
	}
}

func TestRuntime_UnknownTargetDropped(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	v := NewVertexFunc[logState, logUpdate]("loner",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("nobody", NewData("x", 1))
			return Halt(logUpdate{Append: []string{"loner"}}), nil
		})
	mustAdd(t, rt, v)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Supersteps != 1 {
		t.Errorf("supersteps = %d, want 1", result.Supersteps)
	}
}

// completingReactivator completes instead of waking when mail arrives.
type completingReactivator struct {
	*VertexFunc[logState, logUpdate]
}

func (completingReactivator) OnReactivation() VertexState { return StateCompleted }

func TestRuntime_ReactivationHook(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	var computes atomic.Int32
	sleeper := completingReactivator{NewVertexFunc[logState, logUpdate]("sleeper",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			computes.Add(1)
			return Halt(logUpdate{}), nil
		})}
	waker := NewVertexFunc[logState, logUpdate]("waker",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("sleeper", Activate())
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, sleeper)
	mustAdd(t, rt, waker)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := computes.Load(); got != 1 {
		t.Errorf("sleeper computed %d times, want 1", got)
	}
	if result.VertexStates["sleeper"] != StateCompleted {
		t.Errorf("sleeper state = %v, want completed", result.VertexStates["sleeper"])
	}
}

func TestRuntime_HaltRequestWakesVertex(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	var sleeperCalls atomic.Int32
	sleeper := NewVertexFunc[logState, logUpdate]("sleeper",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			sleeperCalls.Add(1)
			return Halt(logUpdate{}), nil
		})
	requester := NewVertexFunc[logState, logUpdate]("requester",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("sleeper", NewHalt())
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, sleeper)
	mustAdd(t, rt, requester)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The halt request is mail like any other: it wakes the sleeper once
	// and the workflow still terminates.
	if got := sleeperCalls.Load(); got != 2 {
		t.Errorf("sleeper computed %d times, want 2", got)
	}
	if result.Supersteps != 2 {
		t.Errorf("supersteps = %d, want 2", result.Supersteps)
	}
}

func TestRuntime_ReactivationHookSeesHaltMail(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	rt := NewRuntime[logState, logUpdate](logState{},
		WithWorkflowID("wf-decline"),
		WithEmitter(buf),
	)

	var computes atomic.Int32
	sleeper := completingReactivator{NewVertexFunc[logState, logUpdate]("sleeper",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			computes.Add(1)
			return Halt(logUpdate{}), nil
		})}
	requester := NewVertexFunc[logState, logUpdate]("requester",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			cc.Send("sleeper", NewHalt())
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, sleeper)
	mustAdd(t, rt, requester)

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The hook ran on the halt-only inbox and retired the vertex; its
	// undelivered mail was dropped with an event.
	if got := computes.Load(); got != 1 {
		t.Errorf("sleeper computed %d times, want 1", got)
	}
	if result.VertexStates["sleeper"] != StateCompleted {
		t.Errorf("sleeper state = %v, want completed", result.VertexStates["sleeper"])
	}
	dropped := buf.GetHistoryWithFilter("wf-decline", emit.HistoryFilter{
		VertexID: "sleeper",
		Msg:      "messages_dropped",
	})
	if len(dropped) != 1 {
		t.Fatalf("messages_dropped events = %d, want 1", len(dropped))
	}
	if dropped[0].Meta["reason"] != "reactivation_declined" {
		t.Errorf("drop reason = %v, want reactivation_declined", dropped[0].Meta["reason"])
	}
}

// dedupVertex collapses its inbox to one message per key.
type dedupVertex struct {
	*VertexFunc[logState, logUpdate]
}

func (dedupVertex) CombineMessages(msgs []Message) []Message {
	seen := make(map[string]bool)
	var out []Message
	for _, m := range msgs {
		if m.Kind == KindData && seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		out = append(out, m)
	}
	return out
}

func TestRuntime_CombineMessages(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{})

	var delivered atomic.Int32
	sink := dedupVertex{NewVertexFunc[logState, logUpdate]("sink",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			if cc.HasMessages() {
				delivered.Store(int32(cc.MessageCount()))
			}
			return Halt(logUpdate{}), nil
		})}
	spammer := NewVertexFunc[logState, logUpdate]("spammer",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			for i := 0; i < 5; i++ {
				cc.Send("sink", NewData("dup", i))
			}
			return Halt(logUpdate{}), nil
		})
	mustAdd(t, rt, sink)
	mustAdd(t, rt, spammer)

	if _, err := rt.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := delivered.Load(); got != 1 {
		t.Errorf("delivered = %d messages after combining, want 1", got)
	}
}

func TestRuntime_ABEndExample(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{},
		WithExecutionMode(ModeEdgeDriven),
	)

	mustAdd(t, rt, appendVertex("a"))
	mustAdd(t, rt, appendVertex("b"))
	end := NewVertexFunc[logState, logUpdate]("end",
		func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
			return Complete(logUpdate{Append: []string{"end"}, Done: true}), nil
		})
	mustAdd(t, rt, end)

	mustConnect(t, rt, "a", "b")
	mustConnect(t, rt, "b", "end")
	if err := rt.SetEntry("a"); err != nil {
		t.Fatalf("SetEntry() error = %v", err)
	}

	result, err := rt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"a", "b", "end"}
	for i, id := range want {
		if i >= len(result.State.Log) || result.State.Log[i] != id {
			t.Fatalf("log = %v, want %v", result.State.Log, want)
		}
	}
	if !result.Completed || !result.State.Done {
		t.Error("workflow should terminate via the end vertex")
	}
}

func TestRuntime_ParallelismBound(t *testing.T) {
	rt := NewRuntime[logState, logUpdate](logState{}, WithParallelism(2))

	var inflight, peak atomic.Int32
	for i := 0; i < 8; i++ {
		id := VertexID(fmt.Sprintf("v%d", i))
		mustAdd(t, rt, NewVertexFunc[logState, logUpdate](id,
			func(ctx context.Context, cc *ComputeContext[logState]) (ComputeResult[logUpdate], error) {
				n := inflight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inflight.Add(-1)
				return Halt(logUpdate{}), nil
			}))
	}

	if _, err := rt.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}
