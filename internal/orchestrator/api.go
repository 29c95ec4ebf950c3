package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/events"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/render"
)

// Attach implements the /attach boundary's core operation (spec.md §6):
// validate the platform credentials, register the binding with the
// DestinationRegistry, persist it, and synchronously deliver an initial
// message so the caller gets a message_id back immediately rather than
// waiting for the next debounced update.
func (o *Orchestrator) Attach(ctx context.Context, sessionID, sourcePath string, dest destination.Destination, preset render.Preset, replayCount int) (attached bool, messageID string, replayedEvents int, err error) {
	client, ok := o.clients[dest.Kind]
	if !ok || client == nil {
		return false, "", 0, platform.ErrCredentialsAbsent
	}
	if err := client.Validate(ctx); err != nil {
		return false, "", 0, err
	}

	ok, err = o.registry.Attach(sessionID, sourcePath, dest, preset)
	if err != nil {
		return false, "", 0, err
	}
	if !ok {
		// Already attached: idempotent no-op, report the existing binding.
		if b, found := o.registry.FindBinding(sessionID, dest); found {
			return false, b.MessageID, 0, nil
		}
		return false, "", 0, nil
	}

	if err := o.persistAttach(sessionID, sourcePath, dest); err != nil {
		return true, "", 0, err
	}

	all := o.buffer.All(sessionID)
	replayedEvents = len(all)
	if replayCount > 0 && replayCount < replayedEvents {
		replayedEvents = replayCount
	}

	messageID, err = o.initialDeliver(ctx, sessionID, dest, preset, all)
	if err != nil {
		// Delivery failures never fail the attach itself (spec.md §7
		// PlatformTransient is logged and dropped); the binding remains
		// eligible for the next debounced update.
		return true, "", replayedEvents, nil
	}
	return true, messageID, replayedEvents, nil
}

// initialDeliver sends the current render synchronously (outside the
// Debouncer) so Attach can hand the caller a message_id in its response.
func (o *Orchestrator) initialDeliver(ctx context.Context, sessionID string, dest destination.Destination, preset render.Preset, all []events.Event) (string, error) {
	doc := o.renderCache.Rebuild(sessionID, preset, all)
	client, _, content := o.formatFor(dest.Kind, doc)
	if client == nil {
		return "", nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, platformCallTimeout)
	defer cancel()
	id, err := client.Send(sendCtx, dest.Identifier, content)
	if err != nil {
		return "", err
	}
	o.registry.SetMessageID(sessionID, dest, id)
	return id, nil
}

// Detach implements the /detach boundary's operation.
func (o *Orchestrator) Detach(sessionID string, dest destination.Destination) bool {
	if key, ok := o.untrackBindingKey(sessionID, dest); ok {
		o.debouncer.Cancel(key)
	}
	removed := o.registry.Detach(sessionID, dest)
	if removed {
		if err := o.persistDetach(sessionID, dest); err != nil {
			// Persistence failure is logged by persistDetach itself; the
			// runtime detach has already taken effect.
			_ = err
		}
	}
	return removed
}

// SessionSummary is one entry of the GET /sessions response.
type SessionSummary struct {
	SessionID    string
	Path         string
	Destinations map[string][]string // "TG"/"SL" -> compound identifiers
	SSEClients   int
}

// Sessions lists every session currently known to the DestinationRegistry.
func (o *Orchestrator) Sessions() []SessionSummary {
	ids := o.registry.Sessions()
	out := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		st, _ := o.existingState(id)
		path := ""
		if st != nil {
			path = st.sourcePath
		}
		dests := map[string][]string{"TG": {}, "SL": {}}
		for _, ad := range o.registry.Destinations(id) {
			key := "SL"
			if ad.Destination.Kind == destination.KindTelegram {
				key = "TG"
			}
			dests[key] = append(dests[key], ad.Destination.Identifier)
		}
		out = append(out, SessionSummary{
			SessionID:    id,
			Path:         path,
			Destinations: dests,
			SSEClients:   o.hub.ClientCount(id),
		})
	}
	return out
}

// KnowsSession reports whether sessionID is tracked by the
// DestinationRegistry (live or draining), used by the HTTP surface to
// return 404 for /sessions/{id}/events on an unknown session.
func (o *Orchestrator) KnowsSession(sessionID string) bool {
	for _, id := range o.registry.Sessions() {
		if id == sessionID {
			return true
		}
	}
	return false
}

// EventsSince returns every retained event for sessionID with id strictly
// greater than afterID (0 for the full retained history), for SSE replay.
func (o *Orchestrator) EventsSince(sessionID string, afterID int64) []events.Event {
	return o.buffer.GetSince(sessionID, afterID)
}

// ServeEvents serves sessionID's event-stream to w, replaying retained
// events newer than lastEventID before forwarding live broadcasts, per
// spec.md §6. It blocks until the client disconnects or ctx is cancelled.
func (o *Orchestrator) ServeEvents(ctx context.Context, w http.ResponseWriter, sessionID string, lastEventID int64) error {
	if !o.KnowsSession(sessionID) {
		return ErrSessionNotFound
	}
	replay := o.buffer.GetSince(sessionID, lastEventID)
	return o.hub.ServeSSE(ctx, w, sessionID, replay)
}

// BotStatus reports whether credentials are configured for kind, for the
// /health endpoint's bots block.
func (o *Orchestrator) BotStatus(kind destination.Kind) string {
	if o.clients[kind] != nil {
		return "configured"
	}
	return "not_configured"
}

// UptimeSeconds reports how long this Orchestrator has been running.
func (o *Orchestrator) UptimeSeconds() float64 {
	return time.Since(o.startedAt).Seconds()
}

// SessionsWatchedCount is the number of sessions with >= 1 live binding
// (i.e. in the Watching state, not Draining).
func (o *Orchestrator) SessionsWatchedCount() int {
	count := 0
	for _, id := range o.registry.Sessions() {
		if len(o.registry.Destinations(id)) > 0 {
			count++
		}
	}
	return count
}
