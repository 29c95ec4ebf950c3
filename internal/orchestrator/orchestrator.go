// Package orchestrator wires the Tailer, Transformer, EventBuffer, SSEHub,
// RenderCache, Debouncer, DestinationRegistry and PlatformClients together
// into the single per-session pipeline spec.md §4.8 describes, and drives
// the Unknown -> Watching -> Draining -> Unknown session lifecycle.
// Grounded on the teacher's internal/monitor/monitor.go (tracked-state map,
// single owning per-session processing, non-blocking emit-and-log-drops)
// but event-driven off Tailer callbacks rather than polling.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/claude-session-player/watcher/internal/config"
	"github.com/claude-session-player/watcher/internal/debounce"
	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/eventbuffer"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/registry"
	"github.com/claude-session-player/watcher/internal/render"
	"github.com/claude-session-player/watcher/internal/sse"
	"github.com/claude-session-player/watcher/internal/statestore"
	"github.com/claude-session-player/watcher/internal/tailer"
	"github.com/claude-session-player/watcher/internal/transform"
)

// ErrSessionNotFound is returned by ServeEvents for a session the
// orchestrator has never seen (not in the persisted config and not
// currently watched).
var ErrSessionNotFound = errors.New("orchestrator: unknown session")

const platformCallTimeout = 10 * time.Second

// Clients maps a Destination Kind to the PlatformClient that serves it. A
// nil entry means that platform has no credentials configured.
type Clients map[destination.Kind]platform.Client

// sessionState is the per-session mutable pipeline state: the opaque
// transformer context and line counter, serialized by its own mutex so the
// Orchestrator never processes two batches of the same session
// concurrently (spec.md §5).
type sessionState struct {
	mu         sync.Mutex
	sourcePath string
	ctx        json.RawMessage
	lineNumber uint64
}

// Orchestrator owns every mutable structure in the watcher's core and has
// a defined Start/Shutdown lifecycle (spec.md §9 "no global mutable
// state").
type Orchestrator struct {
	cfgPath     string
	transformer transform.Transformer
	clients     Clients

	cfgMu sync.Mutex
	cfg   *config.Config

	tailer      *tailer.Tailer
	registry    *registry.Registry
	buffer      *eventbuffer.Buffer
	hub         *sse.Hub
	renderCache *render.Cache
	debouncer   *debounce.Debouncer
	checkpoints *statestore.Store

	sessionsMu sync.Mutex
	sessions   map[string]*sessionState

	bindingMu   sync.Mutex
	bindingKeys map[string]map[string]debounce.Key // sessionID -> dest.Key() -> last scheduled debounce.Key

	startedAt time.Time
}

// New constructs an Orchestrator. cfg is owned by the Orchestrator from
// this point on; callers must not mutate it further.
func New(cfgPath string, cfg *config.Config, stateDir string, transformer transform.Transformer, clients Clients) (*Orchestrator, error) {
	o := &Orchestrator{
		cfgPath:     cfgPath,
		cfg:         cfg,
		transformer: transformer,
		clients:     clients,
		buffer:      eventbuffer.New(eventbuffer.DefaultCapacity),
		hub:         sse.NewHub(),
		renderCache: render.NewCache(),
		debouncer:   debounce.New(),
		checkpoints: statestore.New(stateDir),
		sessions:    make(map[string]*sessionState),
		bindingKeys: make(map[string]map[string]debounce.Key),
		startedAt:   time.Now(),
	}
	o.registry = registry.New(o.onSessionStart, o.onSessionStop)

	if err := o.checkpoints.SweepTempFiles(); err != nil {
		log.Printf("orchestrator: sweep stale checkpoint tempfiles: %v", err)
	}
	if cfgPath != "" {
		if err := config.SweepTempFiles(cfgPath); err != nil {
			log.Printf("orchestrator: sweep stale config tempfiles: %v", err)
		}
	}

	t, err := tailer.New(o.onTailerRecords, o.onTailerDeleted)
	if err != nil {
		return nil, err
	}
	o.tailer = t
	return o, nil
}

// Start begins watching every session with >= 1 persisted destination and
// starts the Tailer's filesystem watch loop (spec.md §4.6
// restore_from_config, §4.8 startup).
func (o *Orchestrator) Start() {
	o.tailer.Start()

	o.cfgMu.Lock()
	sessions := o.cfg.Sessions
	o.cfgMu.Unlock()

	for sessionID, entry := range sessions {
		for _, tg := range entry.Destinations.TG {
			threadID, hasThread := 0, false
			if tg.ThreadID != nil {
				threadID, hasThread = *tg.ThreadID, true
			}
			dest := destination.Destination{
				Kind:       destination.KindTelegram,
				Identifier: destination.FormatTelegramIdentifier(tg.ChatID, threadID, hasThread),
			}
			o.registry.RestoreSession(sessionID, entry.Path, dest, render.PresetDesktop)
		}
		for _, sl := range entry.Destinations.SL {
			dest := destination.Destination{Kind: destination.KindSlack, Identifier: sl.Channel}
			o.registry.RestoreSession(sessionID, entry.Path, dest, render.PresetDesktop)
		}
	}
	o.registry.EmitRestoredSessionStarts()
}

// Shutdown implements spec.md §4.8's shutdown sequence: flush pending
// debounced writes, stop accepting new Tailer events, notify every SSE
// subscriber, and cancel outstanding timers.
func (o *Orchestrator) Shutdown() {
	o.debouncer.Flush()
	o.registry.Shutdown()
	if err := o.tailer.Stop(); err != nil {
		log.Printf("orchestrator: stop tailer: %v", err)
	}
	for _, sessionID := range o.registry.Sessions() {
		o.hub.CloseSession(sessionID, "shutdown")
	}
}
