// Package transform defines the pure-function boundary the Orchestrator
// delegates JSONL-to-Event interpretation to. Per spec.md §1 this is an
// external collaborator — the tool-input abbreviation table and the real
// upstream transformer are explicitly out of scope. This package supplies
// only the interface contract (grounded on the teacher's internal/monitor/
// source.go Source interface shape: Discover/Parse as the pure, stateless
// boundary a concrete backend fulfils) plus one concrete, minimal
// implementation so the pipeline is exercisable end-to-end in tests and
// local development.
package transform

import (
	"encoding/json"

	"github.com/claude-session-player/watcher/internal/events"
)

// Transformer maps a batch of raw JSONL records plus the opaque context
// carried from the previous call into a batch of Events and an updated
// opaque context. It must be a pure function of its inputs: no I/O, no
// hidden state beyond what flows through ctx.
type Transformer interface {
	Transform(records []json.RawMessage, ctx json.RawMessage) (out []events.Event, newCtx json.RawMessage, err error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(records []json.RawMessage, ctx json.RawMessage) ([]events.Event, json.RawMessage, error)

func (f TransformerFunc) Transform(records []json.RawMessage, ctx json.RawMessage) ([]events.Event, json.RawMessage, error) {
	return f(records, ctx)
}
