// Package sse fans out per-session event streams to HTTP subscribers using
// the text/event-stream framing from spec.md §6, with Last-Event-ID replay
// and slow-subscriber backpressure handled by dropping rather than
// blocking. Adapted from the teacher's internal/ws/broadcast.go client/
// send-channel/writePump shape.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/claude-session-player/watcher/internal/events"
)

const sendBufferSize = 64

type subscriber struct {
	id     uint64
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// Hub fans out events for a single process's sessions to HTTP SSE clients.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[uint64]*subscriber // sessionID -> id -> subscriber
	nextID      uint64

	dropMu      sync.Mutex
	dropCount   int
	lastDropLog time.Time
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[uint64]*subscriber)}
}

// Broadcast encodes evt as a single SSE record and sends it to every
// subscriber of sessionID, dropping (not blocking on) any subscriber whose
// send buffer is full.
func (h *Hub) Broadcast(sessionID string, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("sse: marshal event for session %s: %v", sessionID, err)
		return
	}
	record := formatRecord(evt.ID, evt.Kind.String(), payload)
	h.send(sessionID, record)
}

// CloseSession sends a terminal session_ended record to every subscriber
// of sessionID and disconnects them, per spec.md §6.
func (h *Hub) CloseSession(sessionID, reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	record := formatRecord(0, "session_ended", payload)
	h.send(sessionID, record)

	h.mu.Lock()
	subs := h.subscribers[sessionID]
	delete(h.subscribers, sessionID)
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

func formatRecord(id int64, eventTag string, data []byte) []byte {
	var buf []byte
	if id > 0 {
		buf = append(buf, fmt.Sprintf("id:%d\n", id)...)
	}
	buf = append(buf, fmt.Sprintf("event:%s\n", eventTag)...)
	buf = append(buf, "data:"...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	return buf
}

func (h *Hub) send(sessionID string, record []byte) {
	h.mu.Lock()
	subs := h.subscribers[sessionID]
	h.mu.Unlock()
	for _, s := range subs {
		select {
		case s.send <- record:
		default:
			h.recordDrop(sessionID)
			h.removeSubscriber(sessionID, s)
			s.close()
		}
	}
}

func (h *Hub) recordDrop(sessionID string) {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	h.dropCount++
	if time.Since(h.lastDropLog) >= 10*time.Second {
		log.Printf("sse: dropped %d slow subscriber(s) for session %s in the last interval", h.dropCount, sessionID)
		h.dropCount = 0
		h.lastDropLog = time.Now()
	}
}

func (h *Hub) removeSubscriber(sessionID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[sessionID]; ok {
		delete(subs, s.id)
	}
}

// ClientCount returns the number of live subscribers for sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID])
}

// ServeSSE writes the event-stream response for sessionID to w, writing
// the replay events first (the caller selects them, e.g. those newer than
// the client's Last-Event-ID) before forwarding live broadcasts. It blocks
// until the client disconnects or ctx is cancelled.
func (h *Hub) ServeSSE(ctx context.Context, w http.ResponseWriter, sessionID string, replay []events.Event) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("sse: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, evt := range replay {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if _, err := w.Write(formatRecord(evt.ID, evt.Kind.String(), payload)); err != nil {
			return err
		}
	}
	flusher.Flush()

	sub := &subscriber{id: h.allocID(), send: make(chan []byte, sendBufferSize), closed: make(chan struct{})}
	h.addSubscriber(sessionID, sub)
	defer func() {
		h.removeSubscriber(sessionID, sub)
		sub.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.closed:
			return nil
		case record, ok := <-sub.send:
			if !ok {
				return nil
			}
			if _, err := w.Write(record); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) allocID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *Hub) addSubscriber(sessionID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[uint64]*subscriber)
		h.subscribers[sessionID] = subs
	}
	subs[s.id] = s
}
