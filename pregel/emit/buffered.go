package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, organized
// by workflow ID, with query support.
//
// Use cases:
//   - Tests asserting on emitted event sequences
//   - Development and debugging
//   - Post-run analysis of a workflow's execution
//
// All events are held in memory; long-running deployments should prefer a
// streaming sink and Clear completed workflows.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // workflowID -> events
}

// HistoryFilter selects events in GetHistoryWithFilter. Set fields combine
// with AND logic; zero values mean no filter.
type HistoryFilter struct {
	VertexID     string // filter by vertex ID
	Msg          string // filter by event type
	MinSuperstep *int   // events with Superstep >= MinSuperstep
	MaxSuperstep *int   // events with Superstep <= MaxSuperstep
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores the event. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.WorkflowID] = append(b.events[event.WorkflowID], event)
}

// GetHistory returns a copy of all events for a workflow in emission order.
func (b *BufferedEmitter) GetHistory(workflowID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[workflowID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// GetHistoryWithFilter returns the events for a workflow matching the
// filter, in emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(workflowID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events[workflowID] {
		if filter.VertexID != "" && event.VertexID != filter.VertexID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		if filter.MinSuperstep != nil && event.Superstep < *filter.MinSuperstep {
			continue
		}
		if filter.MaxSuperstep != nil && event.Superstep > *filter.MaxSuperstep {
			continue
		}
		out = append(out, event)
	}
	return out
}

// Clear drops all events for one workflow.
func (b *BufferedEmitter) Clear(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, workflowID)
}

// ClearAll drops every stored event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
