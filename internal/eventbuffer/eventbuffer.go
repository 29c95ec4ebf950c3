// Package eventbuffer holds, per session, a bounded ring of events with a
// session-monotonic id sequence, serving both SSE replay and RenderCache
// folding. Adapted from the teacher's internal/session/store.go mutex-map
// pattern; capacity choice documented in DESIGN.md ("Open Question
// decisions").
package eventbuffer

import (
	"sync"

	"github.com/claude-session-player/watcher/internal/events"
)

// DefaultCapacity is the per-session ring capacity (see DESIGN.md).
const DefaultCapacity = 2048

type sessionBuffer struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	events   []events.Event // ring, append order, oldest first
}

func newSessionBuffer(capacity int) *sessionBuffer {
	return &sessionBuffer{capacity: capacity}
}

func (b *sessionBuffer) add(evt events.Event) events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	evt.ID = b.nextID
	b.events = append(b.events, evt)
	if len(b.events) > b.capacity {
		overflow := len(b.events) - b.capacity
		b.events = b.events[overflow:]
	}
	return evt
}

func (b *sessionBuffer) since(afterID int64) []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if afterID <= 0 {
		out := make([]events.Event, len(b.events))
		copy(out, b.events)
		return out
	}
	var out []events.Event
	for _, e := range b.events {
		if e.ID > afterID {
			out = append(out, e)
		}
	}
	return out
}

func (b *sessionBuffer) all() []events.Event {
	return b.since(0)
}

func (b *sessionBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Buffer is a registry of per-session event rings.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	sessions map[string]*sessionBuffer
}

// New creates a Buffer with the given per-session capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, sessions: make(map[string]*sessionBuffer)}
}

func (b *Buffer) sessionFor(sessionID string) *sessionBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.sessions[sessionID]
	if !ok {
		sb = newSessionBuffer(b.capacity)
		b.sessions[sessionID] = sb
	}
	return sb
}

// Add appends evt to sessionID's buffer and returns it with its assigned,
// session-monotonic id populated.
func (b *Buffer) Add(sessionID string, evt events.Event) events.Event {
	return b.sessionFor(sessionID).add(evt)
}

// GetSince returns all events for sessionID with id strictly greater than
// afterID, in append order. afterID of 0 returns every retained event.
func (b *Buffer) GetSince(sessionID string, afterID int64) []events.Event {
	b.mu.RLock()
	sb, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return sb.since(afterID)
}

// All returns every retained event for sessionID, in append order.
func (b *Buffer) All(sessionID string) []events.Event {
	return b.GetSince(sessionID, 0)
}

// Clear wipes a session's retained events without removing the session's
// monotonic id counter. Session teardown uses Remove instead, and ClearAll
// events stay in the buffer (render.Fold applies them).
func (b *Buffer) Clear(sessionID string) {
	b.mu.RLock()
	sb, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if ok {
		sb.clear()
	}
}

// Remove drops a session's buffer entirely, including its id counter.
func (b *Buffer) Remove(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}
