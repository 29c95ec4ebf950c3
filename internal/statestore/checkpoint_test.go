package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	cp := &Checkpoint{
		FilePosition:       128,
		LineNumber:         4,
		TransformerContext: json.RawMessage(`{"a":1}`),
		LastModified:       time.Now().Truncate(time.Second),
	}
	if err := store.Save("session one", cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("session one")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.FilePosition != cp.FilePosition || got.LineNumber != cp.LineNumber {
		t.Fatalf("mismatch: got %+v want %+v", got, cp)
	}
}

func TestCheckpointLoadMissingIsNotError(t *testing.T) {
	store := New(t.TempDir())
	cp, ok, err := store.Load("never-seen")
	if err != nil || ok || cp != nil {
		t.Fatalf("expected (nil, false, nil) for missing checkpoint, got (%v, %v, %v)", cp, ok, err)
	}
}

func TestCheckpointLoadCorruptIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	path := filepath.Join(dir, SanitizeSessionID("broken")+".json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	cp, ok, err := store.Load("broken")
	if err != nil || ok || cp != nil {
		t.Fatalf("expected corrupt checkpoint treated as \"no prior state\", got (%v, %v, %v)", cp, ok, err)
	}
}

func TestCheckpointDeleteIsIdempotent(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Delete("never-existed"); err != nil {
		t.Fatalf("deleting a nonexistent checkpoint should succeed, got: %v", err)
	}
}
