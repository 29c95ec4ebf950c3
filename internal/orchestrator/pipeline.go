package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/claude-session-player/watcher/internal/debounce"
	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/registry"
	"github.com/claude-session-player/watcher/internal/render"
	"github.com/claude-session-player/watcher/internal/statestore"
)

// onTailerRecords implements spec.md §4.8's per-batch pipeline: transform,
// checkpoint, append+broadcast, then rebuild and re-deliver to every
// binding on the session.
func (o *Orchestrator) onTailerRecords(sessionID string, records []json.RawMessage, newPosition uint64) {
	st, ok := o.existingState(sessionID)
	if !ok {
		st = o.stateFor(sessionID, "")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	evts, newCtx, err := o.transformer.Transform(records, st.ctx)
	if err != nil {
		log.Printf("orchestrator: transform session %s: %v", sessionID, err)
		return
	}
	st.ctx = newCtx
	st.lineNumber += uint64(len(records))

	if err := o.checkpoints.Save(sessionID, &statestore.Checkpoint{
		FilePosition:       newPosition,
		LineNumber:         st.lineNumber,
		TransformerContext: newCtx,
		LastModified:       time.Now(),
	}); err != nil {
		log.Printf("orchestrator: save checkpoint for %s: %v", sessionID, err)
	}

	if len(evts) == 0 {
		return
	}
	for _, evt := range evts {
		assigned := o.buffer.Add(sessionID, evt)
		o.hub.Broadcast(sessionID, assigned)
	}
	o.rebuildAndDeliver(sessionID)
}

// rebuildAndDeliver folds the session's full event history for both
// presets and schedules a debounced delivery for every attached binding,
// per spec.md §4.8 step 5.
func (o *Orchestrator) rebuildAndDeliver(sessionID string) {
	all := o.buffer.All(sessionID)
	docs := map[render.Preset]*render.Document{
		render.PresetDesktop: o.renderCache.Rebuild(sessionID, render.PresetDesktop, all),
		render.PresetMobile:  o.renderCache.Rebuild(sessionID, render.PresetMobile, all),
	}

	for _, ad := range o.registry.Destinations(sessionID) {
		o.scheduleDelivery(sessionID, ad, docs[ad.Preset])
	}
}

// formatFor converts a platform-agnostic render.Document into the
// PlatformClient and RenderedContent for one destination kind, per
// spec.md §4.4/§4.7.
func (o *Orchestrator) formatFor(kind destination.Kind, doc *render.Document) (platform.Client, time.Duration, platform.RenderedContent) {
	switch kind {
	case destination.KindTelegram:
		return o.clients[destination.KindTelegram], platform.TelegramDebounceDelay, platform.FormatTelegram(doc)
	case destination.KindSlack:
		return o.clients[destination.KindSlack], platform.SlackDebounceDelay, platform.FormatSlack(doc)
	default:
		return nil, 0, nil
	}
}

func (o *Orchestrator) scheduleDelivery(sessionID string, ad *registry.AttachedDestination, doc *render.Document) {
	client, delay, content := o.formatFor(ad.Destination.Kind, doc)
	if client == nil || doc == nil {
		return
	}
	key := debounce.Key{
		DestinationVariant: ad.Destination.Kind.String(),
		Identifier:         ad.Destination.Identifier,
		MessageID:          ad.MessageID,
	}
	o.trackBindingKey(sessionID, ad.Destination, key)
	o.debouncer.Schedule(key, delay, content.CacheKey(), o.deliverFn(sessionID, ad.Destination, client, content))
}

// deliverFn is the closure spec.md §4.5 schedules: it performs the actual
// platform call when the debounce timer fires, falling back to Send if
// Update reports the message is gone.
func (o *Orchestrator) deliverFn(sessionID string, dest destination.Destination, client platform.Client, content platform.RenderedContent) debounce.Fn {
	return func(string) error {
		binding, ok := o.registry.FindBinding(sessionID, dest)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), platformCallTimeout)
		defer cancel()

		if binding.MessageID == "" {
			return o.sendAndRecord(ctx, sessionID, dest, client, content)
		}
		updated, err := client.Update(ctx, dest.Identifier, binding.MessageID, content)
		if err != nil {
			return err
		}
		if !updated {
			return o.sendAndRecord(ctx, sessionID, dest, client, content)
		}
		return nil
	}
}

func (o *Orchestrator) sendAndRecord(ctx context.Context, sessionID string, dest destination.Destination, client platform.Client, content platform.RenderedContent) error {
	id, err := client.Send(ctx, dest.Identifier, content)
	if err != nil {
		return err
	}
	o.registry.SetMessageID(sessionID, dest, id)
	return nil
}

func (o *Orchestrator) trackBindingKey(sessionID string, dest destination.Destination, key debounce.Key) {
	o.bindingMu.Lock()
	defer o.bindingMu.Unlock()
	m, ok := o.bindingKeys[sessionID]
	if !ok {
		m = make(map[string]debounce.Key)
		o.bindingKeys[sessionID] = m
	}
	m[dest.Key()] = key
}

func (o *Orchestrator) untrackBindingKey(sessionID string, dest destination.Destination) (debounce.Key, bool) {
	o.bindingMu.Lock()
	defer o.bindingMu.Unlock()
	m, ok := o.bindingKeys[sessionID]
	if !ok {
		return debounce.Key{}, false
	}
	key, ok := m[dest.Key()]
	if ok {
		delete(m, dest.Key())
	}
	return key, ok
}

func (o *Orchestrator) cancelSessionBindings(sessionID string) {
	o.bindingMu.Lock()
	keys := o.bindingKeys[sessionID]
	delete(o.bindingKeys, sessionID)
	o.bindingMu.Unlock()
	for _, key := range keys {
		o.debouncer.Cancel(key)
	}
}
