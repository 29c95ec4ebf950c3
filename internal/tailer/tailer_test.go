package tailer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSeekTailOffset(t *testing.T) {
	data := []byte("one\ntwo\nthree\n")
	cases := []struct {
		n    int
		want uint64
	}{
		{0, 0},
		{1, uint64(len("one\ntwo\n"))},
		{2, uint64(len("one\n"))},
		{3, 0},
		{10, 0},
	}
	for _, c := range cases {
		got := seekTailOffset(data, c.n)
		if got != c.want {
			t.Errorf("seekTailOffset(n=%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestReadNewPartialRecordNotConsumed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte(`{"a":1}`+"\n"+`{"a":2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotRecords []json.RawMessage
	var gotPosition uint64
	tl, err := New(func(sessionID string, records []json.RawMessage, newPosition uint64) {
		gotRecords = records
		gotPosition = newPosition
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Add("s1", path, 0); err != nil {
		t.Fatal(err)
	}

	tl.ReadNew("s1")

	if len(gotRecords) != 1 {
		t.Fatalf("expected 1 complete record, got %d", len(gotRecords))
	}
	wantPos := uint64(len(`{"a":1}` + "\n"))
	if gotPosition != wantPos {
		t.Errorf("position = %d, want %d (partial trailing record must not be consumed)", gotPosition, wantPos)
	}
}

func TestReadNewTruncationResetsPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte(`{"a":1}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotRecords []json.RawMessage
	tl, err := New(func(sessionID string, records []json.RawMessage, newPosition uint64) {
		gotRecords = records
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a checkpoint far past the current (truncated) file size.
	if err := tl.Add("s1", path, 9999); err != nil {
		t.Fatal(err)
	}

	tl.ReadNew("s1")

	if len(gotRecords) != 1 {
		t.Fatalf("expected reset-and-reread to yield 1 record, got %d", len(gotRecords))
	}
	pos, ok := tl.Position("s1")
	if !ok {
		t.Fatal("expected session to remain registered")
	}
	if pos != uint64(len(`{"a":1}`+"\n")) {
		t.Errorf("unexpected position after truncation reset: %d", pos)
	}
}

func TestReadNewSkipsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	content := "not json at all\n" + `{"ok":true}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotRecords []json.RawMessage
	tl, err := New(func(sessionID string, records []json.RawMessage, newPosition uint64) {
		gotRecords = records
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Add("s1", path, 0); err != nil {
		t.Fatal(err)
	}
	tl.ReadNew("s1")

	if len(gotRecords) != 1 {
		t.Fatalf("expected malformed line to be skipped, leaving 1 record, got %d", len(gotRecords))
	}
}

func TestReadNewDeletedFileSignalsDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte(`{}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deleted := false
	tl, err := New(func(string, []json.RawMessage, uint64) {}, func(sessionID string) {
		deleted = true
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Add("s1", path, 0); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	tl.ReadNew("s1")

	if !deleted {
		t.Error("expected onDeleted callback to fire for a removed file")
	}
}

func TestAddRemoveIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	tl, err := New(func(string, []json.RawMessage, uint64) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Add("s1", path, 0); err != nil {
		t.Fatal(err)
	}
	if err := tl.Add("s1", path, 0); err != nil {
		t.Fatalf("second Add should be idempotent, got error: %v", err)
	}
	tl.Remove("s1")
	tl.Remove("s1") // idempotent remove must not panic
}

func TestStartStop(t *testing.T) {
	tl, err := New(func(string, []json.RawMessage, uint64) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tl.Start()
	time.Sleep(10 * time.Millisecond)
	if err := tl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
