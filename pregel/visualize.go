package pregel

import (
	"fmt"
	"strings"

	"github.com/dshills/pregel-go/pregel/emit"
)

// Mermaid renders the workflow topology as a Mermaid flowchart. Vertices
// are styled by their current lifecycle state and the entry vertex is drawn
// with a stadium shape.
//
// Paste the output into any Mermaid renderer:
//
//	fmt.Println(rt.Mermaid())
func (r *Runtime[S, U]) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, id := range r.order {
		state := r.vertexStates[id]
		if id == r.entry {
			fmt.Fprintf(&b, "    %s([\"%s\"]):::%s\n", id, id, state)
		} else {
			fmt.Fprintf(&b, "    %s[\"%s\"]:::%s\n", id, id, state)
		}
	}

	for _, e := range r.edges {
		if e.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", e.From, e.Label, e.To)
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
		}
	}

	b.WriteString("    classDef active fill:#d4f7d4,stroke:#2e7d32\n")
	b.WriteString("    classDef halted fill:#fff3cd,stroke:#b58900\n")
	b.WriteString("    classDef completed fill:#e0e0e0,stroke:#616161\n")
	return b.String()
}

// LogState emits a snapshot of the runtime through the emitter: per-vertex
// lifecycle states and queue depths plus the superstep counter. Useful for
// debugging stuck workflows.
func (r *Runtime[S, U]) LogState() {
	states := make(map[string]any, len(r.order))
	queues := make(map[string]any, len(r.order))
	for _, id := range r.order {
		states[string(id)] = r.vertexStates[id].String()
		if n := len(r.queues[id]); n > 0 {
			queues[string(id)] = n
		}
	}
	r.emitter.Emit(emit.Event{
		WorkflowID: r.workflowID,
		Superstep:  r.superstep,
		Msg:        "workflow_state",
		Meta: map[string]any{
			"vertex_states": states,
			"queue_depths":  queues,
		},
	})
}
