// Package registry owns the in-memory (and StateStore-backed) index of
// which destinations are attached to which sessions, enforcing the
// keep-alive-after-last-detach rule (spec.md §4.6). Grounded on
// original_source/claude_session_player/watcher/message_binding.py's
// MessageBindingManager plus the teacher's internal/session/store.go
// mutex-map pattern.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/render"
)

// DefaultKeepAlive is the grace period between last-detach and session
// teardown (spec.md §4.6 default 60s; see DESIGN.md for the 300s decision
// taken here, matching original_source's MAX_TTL_SECONDS).
const DefaultKeepAlive = 300 * time.Second

// AttachedDestination is one (destination, preset) pairing live on a
// session, along with its current message binding.
type AttachedDestination struct {
	Destination destination.Destination
	Preset      render.Preset
	AttachedAt  time.Time

	MessageID          string
	LastPushedContent  string
	CreatedAt          time.Time
	TTLSeconds         int
	Expired            bool
}

const (
	defaultTTLSeconds = 30
	maxTTLSeconds     = 300
)

// ExtendTTL extends the binding's TTL by extraSeconds, capped at
// maxTTLSeconds, and clears Expired, matching message_binding.py's
// MessageBinding.extend_ttl.
func (a *AttachedDestination) ExtendTTL(extraSeconds int) {
	a.TTLSeconds += extraSeconds
	if a.TTLSeconds > maxTTLSeconds {
		a.TTLSeconds = maxTTLSeconds
	}
	a.Expired = false
}

// OnSessionStart is invoked exactly once per session when its first
// destination attaches (or on restore_from_config for any session with
// >= 1 persisted destination).
type OnSessionStart func(sessionID, sourcePath string)

// OnSessionStop is invoked when a session's keep-alive timer fires with
// zero destinations still attached.
type OnSessionStop func(sessionID string)

type sessionEntry struct {
	sourcePath   string
	destinations []*AttachedDestination
	keepAlive    *time.Timer
}

// Registry is the DestinationRegistry of spec.md §4.6.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*sessionEntry
	keepAlive   time.Duration
	onStart     OnSessionStart
	onStop      OnSessionStop
}

func New(onStart OnSessionStart, onStop OnSessionStop) *Registry {
	return &Registry{
		sessions:  make(map[string]*sessionEntry),
		keepAlive: DefaultKeepAlive,
		onStart:   onStart,
		onStop:    onStop,
	}
}

// Attach implements spec.md §4.6's attach operation.
func (r *Registry) Attach(sessionID, sourcePath string, dest destination.Destination, preset render.Preset) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, known := r.sessions[sessionID]
	if !known {
		if sourcePath == "" {
			return false, fmt.Errorf("registry: session %s unknown and no source_path provided", sessionID)
		}
		entry = &sessionEntry{sourcePath: sourcePath}
		r.sessions[sessionID] = entry
	}

	for _, d := range entry.destinations {
		if d.Destination.Key() == dest.Key() {
			return false, nil
		}
	}

	isFirst := len(entry.destinations) == 0
	entry.destinations = append(entry.destinations, &AttachedDestination{
		Destination: dest,
		Preset:      preset,
		AttachedAt:  time.Now(),
		CreatedAt:   time.Now(),
		TTLSeconds:  defaultTTLSeconds,
	})

	if entry.keepAlive != nil {
		entry.keepAlive.Stop()
		entry.keepAlive = nil
	}

	if isFirst && r.onStart != nil {
		r.onStart(sessionID, entry.sourcePath)
	}
	return true, nil
}

// Detach implements spec.md §4.6's detach operation.
func (r *Registry) Detach(sessionID string, dest destination.Destination) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	idx := -1
	for i, d := range entry.destinations {
		if d.Destination.Key() == dest.Key() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	entry.destinations = append(entry.destinations[:idx], entry.destinations[idx+1:]...)

	if len(entry.destinations) == 0 {
		r.armKeepAlive(sessionID, entry)
	}
	return true
}

func (r *Registry) armKeepAlive(sessionID string, entry *sessionEntry) {
	if entry.keepAlive != nil {
		entry.keepAlive.Stop()
	}
	entry.keepAlive = time.AfterFunc(r.keepAlive, func() {
		r.mu.Lock()
		e, ok := r.sessions[sessionID]
		stillEmpty := ok && len(e.destinations) == 0
		r.mu.Unlock()
		if stillEmpty && r.onStop != nil {
			r.onStop(sessionID)
		}
	})
}

// Destinations returns a snapshot of sessionID's attached destinations.
func (r *Registry) Destinations(sessionID string) []*AttachedDestination {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*AttachedDestination, len(entry.destinations))
	copy(out, entry.destinations)
	return out
}

// SetMessageID records the platform message handle for a binding after a
// successful Send, so the next debounced Update knows what to edit.
func (r *Registry) SetMessageID(sessionID string, dest destination.Destination, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for _, d := range entry.destinations {
		if d.Destination.Key() == dest.Key() {
			d.MessageID = messageID
			return
		}
	}
}

// FindBinding locates the attached destination on sessionID matching dest.
func (r *Registry) FindBinding(sessionID string, dest destination.Destination) (*AttachedDestination, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	for _, d := range entry.destinations {
		if d.Destination.Key() == dest.Key() {
			return d, true
		}
	}
	return nil, false
}

// Sessions returns every known session id with at least one destination
// ever attached (including those currently draining with zero).
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// RestoreSession seeds runtime state for a session discovered from
// persisted config, without re-triggering Attach's idempotency checks;
// callers are expected to call this once per persisted destination and
// then separately fire on_session_start once per session, matching
// spec.md §4.6's restore_from_config.
func (r *Registry) RestoreSession(sessionID, sourcePath string, dest destination.Destination, preset render.Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		entry = &sessionEntry{sourcePath: sourcePath}
		r.sessions[sessionID] = entry
	}
	entry.destinations = append(entry.destinations, &AttachedDestination{
		Destination: dest,
		Preset:      preset,
		AttachedAt:  time.Now(),
		CreatedAt:   time.Now(),
		TTLSeconds:  defaultTTLSeconds,
	})
}

// EmitRestoredSessionStarts invokes onStart exactly once for every session
// with >= 1 restored destination, completing restore_from_config.
func (r *Registry) EmitRestoredSessionStarts() {
	r.mu.Lock()
	type start struct{ id, path string }
	var starts []start
	for id, entry := range r.sessions {
		if len(entry.destinations) > 0 {
			starts = append(starts, start{id, entry.sourcePath})
		}
	}
	r.mu.Unlock()
	if r.onStart == nil {
		return
	}
	for _, s := range starts {
		r.onStart(s.id, s.path)
	}
}

// Shutdown cancels every keep-alive timer without firing it.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.sessions {
		if entry.keepAlive != nil {
			entry.keepAlive.Stop()
			entry.keepAlive = nil
		}
	}
}

// RemoveSession drops a session entirely (used on Draining -> Unknown
// teardown).
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok && entry.keepAlive != nil {
		entry.keepAlive.Stop()
	}
	delete(r.sessions, sessionID)
}
