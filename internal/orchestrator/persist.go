package orchestrator

import (
	"log"

	"github.com/claude-session-player/watcher/internal/config"
	"github.com/claude-session-player/watcher/internal/destination"
)

// persistAttach adds dest to sessionID's persisted SessionEntry (creating
// the entry if new) and writes the config file, per spec.md §4.2/§4.6.
// Idempotent: attaching an already-persisted destination is a no-op save.
func (o *Orchestrator) persistAttach(sessionID, sourcePath string, dest destination.Destination) error {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	entry, ok := o.cfg.Sessions[sessionID]
	if !ok {
		entry = config.SessionEntry{Path: sourcePath}
	}

	switch dest.Kind {
	case destination.KindTelegram:
		chatID, threadID, hasThread, err := destination.ParseTelegramIdentifier(dest.Identifier)
		if err != nil {
			return err
		}
		target := config.TelegramTarget{ChatID: chatID}
		if hasThread {
			t := threadID
			target.ThreadID = &t
		}
		if !containsTelegramTarget(entry.Destinations.TG, target) {
			entry.Destinations.TG = append(entry.Destinations.TG, target)
		}
	case destination.KindSlack:
		target := config.SlackTarget{Channel: dest.Identifier}
		if !containsSlackTarget(entry.Destinations.SL, target) {
			entry.Destinations.SL = append(entry.Destinations.SL, target)
		}
	}

	o.cfg.Sessions[sessionID] = entry
	return o.saveConfigLocked()
}

// persistDetach removes dest from sessionID's persisted SessionEntry.
// Idempotent: removing an absent destination is a no-op save.
func (o *Orchestrator) persistDetach(sessionID string, dest destination.Destination) error {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	entry, ok := o.cfg.Sessions[sessionID]
	if !ok {
		return nil
	}

	switch dest.Kind {
	case destination.KindTelegram:
		chatID, threadID, hasThread, err := destination.ParseTelegramIdentifier(dest.Identifier)
		if err != nil {
			return err
		}
		entry.Destinations.TG = removeTelegramTarget(entry.Destinations.TG, chatID, threadID, hasThread)
	case destination.KindSlack:
		entry.Destinations.SL = removeSlackTarget(entry.Destinations.SL, dest.Identifier)
	}

	o.cfg.Sessions[sessionID] = entry
	return o.saveConfigLocked()
}

// removePersistedSession drops sessionID's SessionEntry entirely (used on
// file-deletion teardown, spec.md §4.8).
func (o *Orchestrator) removePersistedSession(sessionID string) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	if _, ok := o.cfg.Sessions[sessionID]; !ok {
		return
	}
	delete(o.cfg.Sessions, sessionID)
	if err := o.saveConfigLocked(); err != nil {
		log.Printf("orchestrator: save config after removing session %s: %v", sessionID, err)
	}
}

// saveConfigLocked writes o.cfg to o.cfgPath. Callers must hold o.cfgMu.
func (o *Orchestrator) saveConfigLocked() error {
	if o.cfgPath == "" {
		return nil // no config file configured (e.g. tests); runtime-only.
	}
	if err := config.Save(o.cfgPath, o.cfg); err != nil {
		log.Printf("orchestrator: save config: %v", err)
		return err
	}
	return nil
}

func containsTelegramTarget(targets []config.TelegramTarget, t config.TelegramTarget) bool {
	for _, existing := range targets {
		if existing.ChatID == t.ChatID && telegramThreadEqual(existing.ThreadID, t.ThreadID) {
			return true
		}
	}
	return false
}

func telegramThreadEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func containsSlackTarget(targets []config.SlackTarget, t config.SlackTarget) bool {
	for _, existing := range targets {
		if existing.Channel == t.Channel {
			return true
		}
	}
	return false
}

func removeTelegramTarget(targets []config.TelegramTarget, chatID int64, threadID int, hasThread bool) []config.TelegramTarget {
	out := targets[:0]
	for _, t := range targets {
		match := t.ChatID == chatID
		if hasThread {
			match = match && t.ThreadID != nil && *t.ThreadID == threadID
		} else {
			match = match && t.ThreadID == nil
		}
		if !match {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func removeSlackTarget(targets []config.SlackTarget, channel string) []config.SlackTarget {
	out := targets[:0]
	for _, t := range targets {
		if t.Channel != channel {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
