// Package render folds a session's event list into a platform-agnostic
// Document (spec.md §4.4's rendering contract) and caches one Document per
// (session, preset). Platform-specific string/Block-Kit rendering lives in
// internal/platform, which consumes a Document rather than raw events.
package render

import (
	"sync"

	"github.com/claude-session-player/watcher/internal/events"
)

// Preset selects layout density and truncation rules downstream.
type Preset string

const (
	PresetDesktop Preset = "desktop"
	PresetMobile  Preset = "mobile"
)

// Segment is one displayed unit of a folded Document: either a standalone
// block (USER, SYSTEM, CONTEXT_COMPACTED, QUESTION) or an assistant Turn
// (spec.md GLOSSARY: an assistant-initiated run of ASSISTANT/TOOL_CALL/
// DURATION blocks).
type Segment struct {
	User             *events.Block   // set for a USER segment
	System           *events.Block   // set for a SYSTEM segment
	ContextCompacted *events.Block   // set for a CONTEXT_COMPACTED segment
	Question         *events.Block   // set for a QUESTION segment
	Turn             *Turn           // set for an assistant-turn segment
}

// Turn is an assistant-initiated run of blocks, per the GLOSSARY.
type Turn struct {
	AssistantText string
	ToolCalls     []events.ToolCall
	DurationMS    int64
	HasDuration   bool
}

// Document is the pure fold of a session's full event list for one
// preset. THINKING blocks are dropped entirely per spec.md §4.4.
type Document struct {
	Preset   Preset
	Segments []Segment
}

// Fold builds a Document from the full ordered event list, applying
// AddBlock/UpdateBlock/ClearAll exactly as the spec's pipeline does
// (ClearAll wipes all prior segments; UpdateBlock mutates the block with
// the matching id in place, wherever it currently lives).
func Fold(preset Preset, evts []events.Event) *Document {
	doc := &Document{Preset: preset}
	blocksByID := make(map[string]*events.Block)
	var order []string // block ids in the order they were first added, post ClearAll

	for _, evt := range evts {
		switch evt.Kind {
		case events.KindClearAll:
			blocksByID = make(map[string]*events.Block)
			order = nil
		case events.KindAddBlock:
			if evt.Block == nil {
				continue
			}
			b := cloneBlock(evt.Block)
			blocksByID[b.ID] = b
			order = append(order, b.ID)
		case events.KindUpdateBlock:
			if evt.Block == nil {
				continue
			}
			existing, ok := blocksByID[evt.Block.ID]
			if !ok {
				// Update for a block outside the retained window (e.g. ring
				// eviction dropped the original add): treat as an upsert so
				// the tool result is never silently lost.
				b := cloneBlock(evt.Block)
				blocksByID[b.ID] = b
				order = append(order, b.ID)
				continue
			}
			mergeBlock(existing, evt.Block)
		}
	}

	doc.Segments = buildSegments(order, blocksByID)
	return doc
}

func cloneBlock(b *events.Block) *events.Block {
	cp := *b
	if b.ToolCalls != nil {
		cp.ToolCalls = append([]events.ToolCall(nil), b.ToolCalls...)
	}
	if b.Questions != nil {
		cp.Questions = append([]events.Question(nil), b.Questions...)
	}
	return &cp
}

// mergeBlock applies an UpdateBlock's non-zero fields onto the existing
// block, used for e.g. a TOOL_CALL block receiving its result text, or a
// QUESTION block receiving an answer.
func mergeBlock(existing, update *events.Block) {
	if update.Text != "" {
		existing.Text = update.Text
	}
	if update.ToolUseID != "" {
		existing.ToolUseID = update.ToolUseID
	}
	if update.DurationMS != 0 {
		existing.DurationMS = update.DurationMS
	}
	if update.ToolCalls != nil {
		existing.ToolCalls = update.ToolCalls
	}
	if update.Questions != nil {
		existing.Questions = update.Questions
	}
	if update.Answered {
		existing.Answered = true
		existing.AnsweredVal = update.AnsweredVal
	}
}

// buildSegments groups the block sequence into Segments per the
// GLOSSARY's Turn definition: an assistant turn starts at the first
// ASSISTANT, TOOL_CALL or DURATION block after a standalone segment (or the
// start of the stream) and absorbs subsequent ASSISTANT/TOOL_CALL/DURATION
// blocks. THINKING blocks are dropped without ending the turn. Every other
// block type (USER, SYSTEM, CONTEXT_COMPACTED, QUESTION) ends the current
// turn and is its own standalone segment.
func buildSegments(order []string, blocksByID map[string]*events.Block) []Segment {
	var segments []Segment
	var current *Turn

	flush := func() {
		if current != nil {
			segments = append(segments, Segment{Turn: current})
			current = nil
		}
	}

	for _, id := range order {
		b, ok := blocksByID[id]
		if !ok {
			continue
		}
		switch b.Type {
		case events.BlockThinking:
			continue
		case events.BlockUser:
			flush()
			segments = append(segments, Segment{User: b})
		case events.BlockSystem:
			flush()
			segments = append(segments, Segment{System: b})
		case events.BlockContextCompacted:
			flush()
			segments = append(segments, Segment{ContextCompacted: b})
		case events.BlockQuestion:
			flush()
			segments = append(segments, Segment{Question: b})
		case events.BlockAssistant:
			if current == nil {
				current = &Turn{}
			}
			if b.Text != "" {
				if current.AssistantText != "" {
					current.AssistantText += "\n"
				}
				current.AssistantText += b.Text
			}
		case events.BlockToolCall:
			if current == nil {
				current = &Turn{}
			}
			current.ToolCalls = append(current.ToolCalls, toolCallFromBlock(b)...)
		case events.BlockDuration:
			if current == nil {
				current = &Turn{}
			}
			current.DurationMS = b.DurationMS
			current.HasDuration = true
		}
	}
	flush()
	return segments
}

func toolCallFromBlock(b *events.Block) []events.ToolCall {
	if len(b.ToolCalls) > 0 {
		tc := b.ToolCalls[0]
		tc.Result = b.Text
		return []events.ToolCall{tc}
	}
	return []events.ToolCall{{ToolUseID: b.ToolUseID, Result: b.Text}}
}

// Cache holds the last-built Document per (session, preset), rebuilt in
// full on every dirty event per spec.md §4.4 ("the cache has no
// incrementality requirement beyond correctness" — see DESIGN.md Open
// Question decisions).
type Cache struct {
	mu    sync.RWMutex
	byKey map[string]*Document
}

func NewCache() *Cache {
	return &Cache{byKey: make(map[string]*Document)}
}

func key(sessionID string, preset Preset) string {
	return sessionID + "\x00" + string(preset)
}

// Rebuild recomputes and stores the Document for (sessionID, preset) from
// the full event list.
func (c *Cache) Rebuild(sessionID string, preset Preset, evts []events.Event) *Document {
	doc := Fold(preset, evts)
	c.mu.Lock()
	c.byKey[key(sessionID, preset)] = doc
	c.mu.Unlock()
	return doc
}

// Get returns the cached Document for (sessionID, preset), or nil if never
// built.
func (c *Cache) Get(sessionID string, preset Preset) *Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byKey[key(sessionID, preset)]
}

// Evict drops both presets' cached Documents for sessionID.
func (c *Cache) Evict(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, key(sessionID, PresetDesktop))
	delete(c.byKey, key(sessionID, PresetMobile))
}
