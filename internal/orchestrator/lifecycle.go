package orchestrator

import (
	"log"
	"os"
)

// onSessionStart implements the Unknown -> Watching transition (spec.md
// §4.8): begin tailing the session's file, seeding from its checkpoint if
// one exists or from end-of-file otherwise (attach-at-live).
func (o *Orchestrator) onSessionStart(sessionID, sourcePath string) {
	st := o.stateFor(sessionID, sourcePath)

	cp, ok, err := o.checkpoints.Load(sessionID)
	if err != nil {
		log.Printf("orchestrator: load checkpoint for %s: %v", sessionID, err)
	}

	startPosition := uint64(0)
	if ok {
		startPosition = cp.FilePosition
		st.mu.Lock()
		st.ctx = cp.TransformerContext
		st.lineNumber = cp.LineNumber
		st.mu.Unlock()
	} else if info, statErr := os.Stat(sourcePath); statErr == nil {
		startPosition = uint64(info.Size())
	}

	if err := o.tailer.Add(sessionID, sourcePath, startPosition); err != nil {
		log.Printf("orchestrator: watch %s for session %s: %v", sourcePath, sessionID, err)
	}
}

// onSessionStop implements the Draining -> Unknown transition: the
// keep-alive timer fired with zero destinations still attached.
func (o *Orchestrator) onSessionStop(sessionID string) {
	o.tailer.Remove(sessionID)
	o.buffer.Remove(sessionID)
	o.renderCache.Evict(sessionID)
	if err := o.checkpoints.Delete(sessionID); err != nil {
		log.Printf("orchestrator: delete checkpoint for %s: %v", sessionID, err)
	}
	o.hub.CloseSession(sessionID, "no_destinations")
	o.registry.RemoveSession(sessionID)
	o.removeState(sessionID)
	o.cancelSessionBindings(sessionID)
}

// onTailerDeleted tears the session down immediately: the watched file is
// gone, so there is nothing left to render or deliver.
func (o *Orchestrator) onTailerDeleted(sessionID string) {
	o.hub.CloseSession(sessionID, "file_deleted")
	o.buffer.Remove(sessionID)
	o.renderCache.Evict(sessionID)
	if err := o.checkpoints.Delete(sessionID); err != nil {
		log.Printf("orchestrator: delete checkpoint for %s: %v", sessionID, err)
	}
	o.tailer.Remove(sessionID)
	o.registry.RemoveSession(sessionID)
	o.removeState(sessionID)
	o.cancelSessionBindings(sessionID)
	o.removePersistedSession(sessionID)
}

func (o *Orchestrator) stateFor(sessionID, sourcePath string) *sessionState {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok {
		st = &sessionState{sourcePath: sourcePath}
		o.sessions[sessionID] = st
	}
	return st
}

func (o *Orchestrator) existingState(sessionID string) (*sessionState, bool) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	st, ok := o.sessions[sessionID]
	return st, ok
}

func (o *Orchestrator) removeState(sessionID string) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	delete(o.sessions, sessionID)
}
