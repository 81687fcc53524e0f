package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter carries session events to whatever hosts them.
// ─────────────────────────────────────────────────────────────

// EventEmitter notifies the host (MCP client, CLI, UI bridge) about session
// changes. Sessions receive this interface so they can be tested with a
// mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Session events.
const (
	EventPageChanged  = "page:changed"
	EventPageRejected = "page:rejected"
	EventPageSaved    = "page:saved"
	EventLibraryReady = "library:reloaded"
)

// NopEmitter drops every event. Used when nothing listens, e.g. CLI runs.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls. It is
// safe for use from autosave goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded emissions of one event, in order.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
