// Package debounce coalesces rapid successive updates to the same binding
// into a single delayed platform call, skipping delivery entirely when the
// content is byte-identical to what was last successfully pushed. Ported
// from original_source/claude_session_player/watcher/debouncer.py's
// cancel-then-reschedule idiom onto Go's time.Timer, using the same
// non-overlapping-timer discipline as the teacher's internal/ws/
// broadcast.go (time.AfterFunc-armed coalescing flush).
package debounce

import (
	"log"
	"sync"
	"time"
)

// Key identifies a single binding's debounce state, matching spec.md
// §4.5's (destination_variant, identifier, message_id) triple.
type Key struct {
	DestinationVariant string
	Identifier         string
	MessageID          string
}

// Fn performs the actual delivery for a scheduled update. Errors are
// logged by the Debouncer and never propagated to the caller.
type Fn func(content string) error

type pendingUpdate struct {
	timer   *time.Timer
	content string
	fn      Fn
}

// Debouncer holds per-binding pending timers and last-pushed content.
type Debouncer struct {
	mu            sync.Mutex
	pending       map[Key]*pendingUpdate
	lastPushed    map[Key]string
	lastPushedSet map[Key]bool
}

func New() *Debouncer {
	return &Debouncer{
		pending:       make(map[Key]*pendingUpdate),
		lastPushed:    make(map[Key]string),
		lastPushedSet: make(map[Key]bool),
	}
}

// Schedule implements spec.md §4.5's schedule operation: if content equals
// the binding's last successfully pushed content, the request is dropped
// and no timer is armed ("skipped"); otherwise any existing pending timer
// is cancelled and a new one is armed for delay, replacing pending content
// and fn.
func (d *Debouncer) Schedule(key Key, delay time.Duration, content string, fn Fn) (scheduled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastPushedSet[key] && d.lastPushed[key] == content {
		return false
	}

	if existing, ok := d.pending[key]; ok {
		existing.timer.Stop()
	}

	pu := &pendingUpdate{content: content, fn: fn}
	pu.timer = time.AfterFunc(delay, func() { d.fire(key) })
	d.pending[key] = pu
	return true
}

func (d *Debouncer) fire(key Key) {
	d.mu.Lock()
	pu, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := pu.fn(pu.content); err != nil {
		log.Printf("debounce: delivery failed for binding %+v: %v", key, err)
		return
	}
	d.mu.Lock()
	d.lastPushed[key] = pu.content
	d.lastPushedSet[key] = true
	d.mu.Unlock()
}

// Flush synchronously fires every pending timer immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]Key, 0, len(d.pending))
	for k, pu := range d.pending {
		pu.timer.Stop()
		keys = append(keys, k)
	}
	d.mu.Unlock()
	for _, k := range keys {
		d.fire(k)
	}
}

// CancelAll removes every pending timer without firing it.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, pu := range d.pending {
		pu.timer.Stop()
		delete(d.pending, k)
	}
}

// Cancel removes a single binding's pending timer without firing it, and
// forgets its last-pushed content (used when a binding is torn down).
func (d *Debouncer) Cancel(key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pu, ok := d.pending[key]; ok {
		pu.timer.Stop()
		delete(d.pending, key)
	}
	delete(d.lastPushed, key)
	delete(d.lastPushedSet, key)
}

// HasPending reports whether a binding currently has an armed timer.
func (d *Debouncer) HasPending(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// PendingCount returns the number of bindings with an armed timer.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
