// Package statestore persists per-session checkpoints and the session-id
// sanitization rule that derives their on-disk file names, using the same
// write-tempfile-then-rename discipline as
// original_source/claude_session_player/watcher/state.py's StateManager.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the durable progress marker for a single session's Tailer
// position and the Transformer's opaque context. file_position always
// points just past a terminating newline or at byte 0, never inside a
// record (spec.md §3).
type Checkpoint struct {
	FilePosition        uint64          `json:"file_position"`
	LineNumber          uint64          `json:"line_number"`
	TransformerContext  json.RawMessage `json:"transformer_context,omitempty"`
	LastModified        time.Time       `json:"last_modified"`
}

// Store reads and writes session checkpoints under a state directory, one
// JSON file per sanitized session id.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, SanitizeSessionID(sessionID)+".json")
}

// Load returns (nil, false, nil) when there is no prior checkpoint OR the
// on-disk file is corrupt — corruption is treated as "start fresh", never
// as a fatal error, matching StateManager.load's broad except clause.
func (s *Store) Load(sessionID string) (*Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("statestore: read checkpoint for %s: %w", sessionID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, nil
	}
	return &cp, true, nil
}

// Save atomically replaces the checkpoint file: write to a tempfile in the
// same directory, then rename over the destination. This guarantees a
// reader never observes a partially written checkpoint.
func (s *Store) Save(sessionID string, cp *Checkpoint) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("statestore: create state dir: %w", err)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("statestore: marshal checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".checkpoint_*.json.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: write temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: close temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(sessionID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: rename checkpoint file: %w", err)
	}
	return nil
}

// Delete removes a session's checkpoint file, if any.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("statestore: delete checkpoint for %s: %w", sessionID, err)
	}
	return nil
}

// Exists reports whether a checkpoint file exists for sessionID.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// SweepTempFiles removes leftover `.checkpoint_*.json.tmp` files from a
// prior process that crashed between CreateTemp and Rename in Save
// (spec.md §4.2: crash debris must be recognisable and cleaned on next
// start).
func (s *Store) SweepTempFiles() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, ".checkpoint_*.json.tmp"))
	if err != nil {
		return fmt.Errorf("statestore: glob temp checkpoint files: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("statestore: remove stale temp checkpoint %s: %w", m, err)
		}
	}
	return nil
}
