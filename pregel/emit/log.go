package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// LogEmitter implements Emitter by writing events to an io.Writer as
// human-readable text or JSON lines.
//
// Text mode:
//
//	2026-08-25T10:02:17Z [wf-42] superstep=3 vertex=fetch vertex_retry attempt=1 delay=100ms
//
// JSON mode emits one object per line with a "time" field added to the
// event, suitable for log aggregation pipelines.
//
// Example:
//
//	emitter := emit.NewLogEmitter(os.Stdout, false)
//	rt := pregel.NewRuntime[S, U](initial, pregel.WithEmitter(emitter))
type LogEmitter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewLogEmitter creates a LogEmitter writing to w. Pass jsonMode true for
// JSON lines, false for text.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	return &LogEmitter{w: w, json: jsonMode}
}

// Emit writes one event. Write errors are ignored; logging must never fail
// a workflow.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.json {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitText(event Event) {
	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(l.w, "%s [%s] superstep=%d", ts, event.WorkflowID, event.Superstep)
	if event.VertexID != "" {
		fmt.Fprintf(l.w, " vertex=%s", event.VertexID)
	}
	fmt.Fprintf(l.w, " %s", event.Msg)

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.w, " %s=%v", k, event.Meta[k])
	}
	fmt.Fprintln(l.w)
}

func (l *LogEmitter) emitJSON(event Event) {
	record := struct {
		Time string `json:"time"`
		Event
	}{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Event: event,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	l.w.Write(data)
	io.WriteString(l.w, "\n")
}
