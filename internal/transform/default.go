package transform

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude-session-player/watcher/internal/events"
	"github.com/google/uuid"
)

// defaultContext is the opaque state threaded between Transform calls: the
// pending (unresolved) tool calls keyed by tool_use_id, and the start time
// of the turn currently in progress. Field accumulation here mirrors
// original_source/claude_session_player/watcher/message_state.py's
// TurnState (assistant_text/tool_calls/duration_ms), adapted to produce
// Block values instead of per-turn platform messages.
type defaultContext struct {
	TurnStartUnixMS int64             `json:"turn_start_unix_ms,omitempty"`
	PendingToolUses map[string]string `json:"pending_tool_uses,omitempty"` // tool_use_id -> block id
}

// claudeRecord is the subset of the Claude Code transcript JSONL record
// shape this default transformer understands. The full record format
// (including the tool-input abbreviation table) is the out-of-scope
// external transformer's concern; this is a minimal, self-consistent
// stand-in for exercising the pipeline.
type claudeRecord struct {
	Type      string          `json:"type"`
	Message   *claudeMessage  `json:"message,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	IsMeta    bool            `json:"isMeta,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

type claudeMessage struct {
	Role    string           `json:"role"`
	Content []claudeContent  `json:"content"`
}

type claudeContent struct {
	Type      string          `json:"type"` // text | tool_use | tool_result
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`          // tool_use id
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result's reference back to the tool_use id
	Name      string          `json:"name,omitempty"`        // tool name
	Input     json.RawMessage `json:"input,omitempty"`
	Content   string          `json:"content,omitempty"` // tool_result text
	IsError   bool            `json:"is_error,omitempty"`
}

// Default returns a Transformer for the default Claude Code JSONL record
// shape: user/assistant messages, tool_use/tool_result pairing, system
// notices, and a "summary" record (context compaction) treated as ClearAll.
// It is not a pure function of its inputs: block ids are random UUIDs, and
// DURATION blocks measure wall-clock time between the call that saw the
// user record and the call that saw the assistant record.
func Default() Transformer {
	return TransformerFunc(transformDefault)
}

func transformDefault(records []json.RawMessage, ctxRaw json.RawMessage) ([]events.Event, json.RawMessage, error) {
	var ctx defaultContext
	if len(ctxRaw) > 0 {
		if err := json.Unmarshal(ctxRaw, &ctx); err != nil {
			return nil, nil, fmt.Errorf("transform: decode context: %w", err)
		}
	}
	if ctx.PendingToolUses == nil {
		ctx.PendingToolUses = make(map[string]string)
	}

	var out []events.Event
	for _, raw := range records {
		var rec claudeRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}

		switch {
		case rec.Type == "summary":
			out = append(out, events.Event{Kind: events.KindClearAll})
			out = append(out, events.Event{
				Kind: events.KindAddBlock,
				Block: &events.Block{
					ID:   uuid.NewString(),
					Type: events.BlockContextCompacted,
				},
			})
			ctx.PendingToolUses = make(map[string]string)

		case rec.Type == "user" && rec.Message != nil:
			text := joinText(rec.Message.Content)
			if toolResult, ok := firstToolResult(rec.Message.Content); ok {
				if blockID, known := ctx.PendingToolUses[toolResult.ToolUseID]; known {
					out = append(out, events.Event{
						Kind: events.KindUpdateBlock,
						Block: &events.Block{
							ID:        blockID,
							Type:      events.BlockToolCall,
							ToolUseID: toolResult.ToolUseID,
							Text:      toolResult.Content,
						},
					})
					delete(ctx.PendingToolUses, toolResult.ToolUseID)
					continue
				}
			}
			if text != "" {
				ctx.TurnStartUnixMS = time.Now().UnixMilli()
				out = append(out, events.Event{
					Kind: events.KindAddBlock,
					Block: &events.Block{ID: uuid.NewString(), Type: events.BlockUser, Text: text},
				})
			}

		case rec.Type == "assistant" && rec.Message != nil:
			text := joinText(rec.Message.Content)
			if text != "" {
				out = append(out, events.Event{
					Kind: events.KindAddBlock,
					Block: &events.Block{ID: uuid.NewString(), Type: events.BlockAssistant, Text: text},
				})
			}
			for _, c := range rec.Message.Content {
				if c.Type != "tool_use" {
					continue
				}
				blockID := uuid.NewString()
				ctx.PendingToolUses[c.ID] = blockID
				out = append(out, events.Event{
					Kind: events.KindAddBlock,
					Block: &events.Block{
						ID:        blockID,
						Type:      events.BlockToolCall,
						ToolUseID: c.ID,
						ToolCalls: []events.ToolCall{{ToolUseID: c.ID, Name: c.Name, Label: string(c.Input)}},
					},
				})
			}
			if ctx.TurnStartUnixMS > 0 {
				elapsed := time.Now().UnixMilli() - ctx.TurnStartUnixMS
				out = append(out, events.Event{
					Kind: events.KindAddBlock,
					Block: &events.Block{ID: uuid.NewString(), Type: events.BlockDuration, DurationMS: elapsed},
				})
				ctx.TurnStartUnixMS = 0
			}

		case rec.Type == "system":
			text := rec.Summary
			if text == "" && rec.Message != nil {
				text = joinText(rec.Message.Content)
			}
			if text != "" {
				out = append(out, events.Event{
					Kind: events.KindAddBlock,
					Block: &events.Block{ID: uuid.NewString(), Type: events.BlockSystem, Text: text},
				})
			}
		}
	}

	newCtx, err := json.Marshal(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: encode context: %w", err)
	}
	return out, newCtx, nil
}

func joinText(content []claudeContent) string {
	var text string
	for _, c := range content {
		if c.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += c.Text
		}
	}
	return text
}

func firstToolResult(content []claudeContent) (claudeContent, bool) {
	for _, c := range content {
		if c.Type == "tool_result" {
			return c, true
		}
	}
	return claudeContent{}, false
}
