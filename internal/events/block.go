// Package events defines the closed event/block vocabulary the Transformer
// emits and the EventBuffer stores. The shapes here are the wire contract
// between the Tailer/Transformer pipeline and everything downstream
// (RenderCache, SSEHub).
package events

import (
	"encoding/json"
	"fmt"
)

// BlockType classifies a rendered unit of session content.
type BlockType int

const (
	BlockUser BlockType = iota
	BlockAssistant
	BlockToolCall
	BlockDuration
	BlockSystem
	BlockThinking
	BlockQuestion
	BlockContextCompacted
)

var blockTypeNames = map[BlockType]string{
	BlockUser:             "USER",
	BlockAssistant:        "ASSISTANT",
	BlockToolCall:         "TOOL_CALL",
	BlockDuration:         "DURATION",
	BlockSystem:           "SYSTEM",
	BlockThinking:         "THINKING",
	BlockQuestion:         "QUESTION",
	BlockContextCompacted: "CONTEXT_COMPACTED",
}

var blockTypeFromName = func() map[string]BlockType {
	m := make(map[string]BlockType, len(blockTypeNames))
	for k, v := range blockTypeNames {
		m[v] = k
	}
	return m
}()

func (t BlockType) String() string {
	if name, ok := blockTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

func (t BlockType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *BlockType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := blockTypeFromName[name]
	if !ok {
		return fmt.Errorf("events: unknown block type %q", name)
	}
	*t = v
	return nil
}

// ToolCall describes a single tool invocation folded into an ASSISTANT turn.
type ToolCall struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Label     string `json:"label"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// QuestionOption is one selectable answer to a QUESTION block.
type QuestionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Question is a single question posed by the assistant (e.g. a plan
// approval or multiple-choice tool prompt).
type Question struct {
	Header  string           `json:"header,omitempty"`
	Text    string           `json:"text"`
	Options []QuestionOption `json:"options"`
}

// Block is a single immutable unit of rendered session content. BlockID is
// stable across updates to the same logical block (e.g. a TOOL_CALL block
// updated with its result once the tool finishes).
type Block struct {
	ID          string     `json:"id"`
	Type        BlockType  `json:"type"`
	Text        string     `json:"text,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	ToolUseID   string     `json:"tool_use_id,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
	Answered    bool       `json:"answered,omitempty"`
	AnsweredVal string     `json:"answered_value,omitempty"`
}

// Kind is the Event's operation: append a new block, mutate an existing
// one in place, or wipe the session's rendered history (context compaction).
type Kind int

const (
	KindAddBlock Kind = iota
	KindUpdateBlock
	KindClearAll
)

var kindNames = map[Kind]string{
	KindAddBlock:    "add_block",
	KindUpdateBlock: "update_block",
	KindClearAll:    "clear_all",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, n := range kindNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("events: unknown event kind %q", name)
}

// Event is one entry in a session's EventBuffer. ID is assigned by the
// EventBuffer itself (monotonically increasing per session) and is not set
// by producers.
type Event struct {
	ID    int64  `json:"id"`
	Kind  Kind   `json:"kind"`
	Block *Block `json:"block,omitempty"`
}
