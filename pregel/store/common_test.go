package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// testDoc is the workflow state used across backend tests.
type testDoc struct {
	Phase string `json:"phase"`
	Count int    `json:"count"`
}

func makeCheckpoint(workflowID string, superstep int) Checkpoint[testDoc] {
	return Checkpoint[testDoc]{
		WorkflowID: workflowID,
		Superstep:  superstep,
		State:      testDoc{Phase: "running", Count: superstep * 10},
		VertexStates: map[string]string{
			"a": "halted",
			"b": "active",
		},
		PendingMessages: map[string][]json.RawMessage{
			"b": {json.RawMessage(`{"kind":"data","key":"k","value":1}`)},
		},
		RetryCounts: map[string]int{"b": 1},
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    map[string]string{"note": "test"},
	}
}

// runStoreContract exercises the Store behavior every backend must share.
func runStoreContract(t *testing.T, st Store[testDoc]) {
	ctx := context.Background()

	t.Run("SaveLoadRoundtrip", func(t *testing.T) {
		cp := makeCheckpoint("wf-roundtrip", 3)
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := st.Load(ctx, "wf-roundtrip", 3)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.WorkflowID != cp.WorkflowID || got.Superstep != cp.Superstep {
			t.Errorf("identity = %s/%d, want %s/%d", got.WorkflowID, got.Superstep, cp.WorkflowID, cp.Superstep)
		}
		if got.State != cp.State {
			t.Errorf("state = %+v, want %+v", got.State, cp.State)
		}
		if got.VertexStates["b"] != "active" {
			t.Errorf("vertex states = %v", got.VertexStates)
		}
		if len(got.PendingMessages["b"]) != 1 {
			t.Errorf("pending messages = %v", got.PendingMessages)
		}
		if got.RetryCounts["b"] != 1 {
			t.Errorf("retry counts = %v", got.RetryCounts)
		}
		if got.Metadata["note"] != "test" {
			t.Errorf("metadata = %v", got.Metadata)
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		if _, err := st.Load(ctx, "wf-missing", 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		for _, step := range []int{5, 1, 3} {
			if err := st.Save(ctx, makeCheckpoint("wf-latest", step)); err != nil {
				t.Fatalf("Save(%d) error = %v", step, err)
			}
		}
		got, err := st.Latest(ctx, "wf-latest")
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if got.Superstep != 5 {
			t.Errorf("Latest superstep = %d, want 5", got.Superstep)
		}
	})

	t.Run("LatestMissing", func(t *testing.T) {
		if _, err := st.Latest(ctx, "wf-missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListAscending", func(t *testing.T) {
		for _, step := range []int{20, 2, 11} {
			if err := st.Save(ctx, makeCheckpoint("wf-list", step)); err != nil {
				t.Fatalf("Save(%d) error = %v", step, err)
			}
		}
		steps, err := st.List(ctx, "wf-list")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []int{2, 11, 20}
		if len(steps) != len(want) {
			t.Fatalf("List() = %v, want %v", steps, want)
		}
		for i := range want {
			if steps[i] != want[i] {
				t.Errorf("List()[%d] = %d, want %d", i, steps[i], want[i])
			}
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		steps, err := st.List(ctx, "wf-missing")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(steps) != 0 {
			t.Errorf("List() = %v, want empty", steps)
		}
	})

	t.Run("UpsertOnResave", func(t *testing.T) {
		cp := makeCheckpoint("wf-upsert", 7)
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		cp.State.Count = 999
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("re-Save() error = %v", err)
		}

		steps, err := st.List(ctx, "wf-upsert")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(steps) != 1 {
			t.Fatalf("List() = %v, want single entry after upsert", steps)
		}
		got, err := st.Load(ctx, "wf-upsert", 7)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.State.Count != 999 {
			t.Errorf("count = %d, want the re-saved 999", got.State.Count)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := st.Save(ctx, makeCheckpoint("wf-delete", 1)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := st.Delete(ctx, "wf-delete", 1); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := st.Load(ctx, "wf-delete", 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
		}
		// Deleting again is not an error.
		if err := st.Delete(ctx, "wf-delete", 1); err != nil {
			t.Errorf("second Delete() error = %v", err)
		}
	})

	t.Run("Prune", func(t *testing.T) {
		for step := 1; step <= 5; step++ {
			if err := st.Save(ctx, makeCheckpoint("wf-prune", step)); err != nil {
				t.Fatalf("Save(%d) error = %v", step, err)
			}
		}
		if err := Prune[testDoc](ctx, st, "wf-prune", 2); err != nil {
			t.Fatalf("Prune() error = %v", err)
		}
		steps, err := st.List(ctx, "wf-prune")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(steps) != 2 || steps[0] != 4 || steps[1] != 5 {
			t.Errorf("List() after prune = %v, want [4 5]", steps)
		}
		// Pruning to a larger keep count is a no-op.
		if err := Prune[testDoc](ctx, st, "wf-prune", 10); err != nil {
			t.Fatalf("Prune(keep=10) error = %v", err)
		}
		if steps, _ = st.List(ctx, "wf-prune"); len(steps) != 2 {
			t.Errorf("List() = %v, prune with surplus keep should not delete", steps)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		for step := 1; step <= 3; step++ {
			if err := st.Save(ctx, makeCheckpoint("wf-clear", step)); err != nil {
				t.Fatalf("Save(%d) error = %v", step, err)
			}
		}
		if err := Clear[testDoc](ctx, st, "wf-clear"); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		steps, err := st.List(ctx, "wf-clear")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(steps) != 0 {
			t.Errorf("List() after clear = %v, want empty", steps)
		}
	})

	t.Run("WorkflowIsolation", func(t *testing.T) {
		if err := st.Save(ctx, makeCheckpoint("wf-iso-a", 1)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := st.Save(ctx, makeCheckpoint("wf-iso-b", 2)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		steps, err := st.List(ctx, "wf-iso-a")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(steps) != 1 || steps[0] != 1 {
			t.Errorf("List(wf-iso-a) = %v, want [1]", steps)
		}
		got, err := st.Latest(ctx, "wf-iso-b")
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if got.Superstep != 2 {
			t.Errorf("Latest(wf-iso-b) superstep = %d, want 2", got.Superstep)
		}
	})
}
