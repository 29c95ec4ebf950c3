// Package tailer incrementally reads append-only JSONL session transcript
// files and signals the Orchestrator when new complete records are
// available. Grounded on original_source/claude_session_player/watcher/
// file_watcher.py's IncrementalReader (truncation reset, partial-record
// carry-over, UTF-8 fail-soft decode) merged with the teacher's
// internal/monitor/jsonl.go's byte-offset bufio.Reader mechanics, using
// fsnotify as the Go-native analogue of watchfiles.awatch.
package tailer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
)

// OnRecords is invoked with newly read, well-formed JSON records for a
// session, and the file position just past the last consumed byte.
type OnRecords func(sessionID string, records []json.RawMessage, newPosition uint64)

// OnDeleted is invoked when a watched file no longer exists.
type OnDeleted func(sessionID string)

type watchedFile struct {
	sessionID string
	path      string
	position  uint64
}

// Tailer owns a set of watched session files and a single fsnotify watcher
// over their parent directories, debounced per spec.md §4.1.
type Tailer struct {
	onRecords OnRecords
	onDeleted OnDeleted

	mu       sync.Mutex
	files    map[string]*watchedFile // keyed by session id
	dirRefs  map[string]int          // parent dir -> number of watched files in it
	watcher  *fsnotify.Watcher
	debounce time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer // dir path -> debounce timer
}

// New creates a Tailer. Add registers files immediately and ReadNew can be
// called directly; Start must be called for filesystem change events to
// trigger reads.
func New(onRecords OnRecords, onDeleted OnDeleted) (*Tailer, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tailer: create fsnotify watcher: %w", err)
	}
	return &Tailer{
		onRecords: onRecords,
		onDeleted: onDeleted,
		files:     make(map[string]*watchedFile),
		dirRefs:   make(map[string]int),
		watcher:   w,
		debounce:  100 * time.Millisecond,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		pending:   make(map[string]*time.Timer),
	}, nil
}

// Start begins the fsnotify event loop in a background goroutine.
func (t *Tailer) Start() {
	go t.watchLoop()
}

// Stop tears down the fsnotify watcher and waits for the loop to exit.
func (t *Tailer) Stop() error {
	close(t.stopCh)
	<-t.doneCh
	return t.watcher.Close()
}

// Add registers a session file for tailing. startPosition may equal the
// current file size (attach-at-live) or a prior checkpoint offset.
func (t *Tailer) Add(sessionID, path string, startPosition uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[sessionID]; exists {
		return nil // idempotent
	}
	dir := filepath.Dir(path)
	if t.dirRefs[dir] == 0 {
		if err := t.watcher.Add(dir); err != nil {
			return fmt.Errorf("tailer: watch directory %s: %w", dir, err)
		}
	}
	t.dirRefs[dir]++
	t.files[sessionID] = &watchedFile{sessionID: sessionID, path: path, position: startPosition}
	return nil
}

// Remove unregisters a session file, dropping the directory watch once no
// other watched file shares it.
func (t *Tailer) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wf, ok := t.files[sessionID]
	if !ok {
		return
	}
	delete(t.files, sessionID)
	dir := filepath.Dir(wf.path)
	t.dirRefs[dir]--
	if t.dirRefs[dir] <= 0 {
		delete(t.dirRefs, dir)
		_ = t.watcher.Remove(dir)
	}
}

// Position returns the current read offset for a session, or (0, false) if
// unregistered.
func (t *Tailer) Position(sessionID string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	wf, ok := t.files[sessionID]
	if !ok {
		return 0, false
	}
	return wf.position, true
}

// SeekTail repositions a registered session to the start of the n-th-from-
// last complete record, returning the resulting byte offset. Returns 0 if
// the file has <= n complete records.
func (t *Tailer) SeekTail(sessionID string, n int) (uint64, error) {
	t.mu.Lock()
	wf, ok := t.files[sessionID]
	t.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("tailer: unknown session %s", sessionID)
	}

	data, err := os.ReadFile(wf.path)
	if err != nil {
		return 0, fmt.Errorf("tailer: read %s: %w", wf.path, err)
	}
	offset := seekTailOffset(data, n)

	t.mu.Lock()
	wf.position = offset
	t.mu.Unlock()
	return offset, nil
}

// seekTailOffset computes the byte offset of the start of the n-th-from-
// last complete (newline-terminated) record in data.
func seekTailOffset(data []byte, n int) uint64 {
	if n <= 0 || len(data) == 0 {
		return 0
	}
	// Collect the start offsets of every complete record.
	var starts []int
	recordStart := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			starts = append(starts, recordStart)
			recordStart = i + 1
		}
	}
	if len(starts) <= n {
		return 0
	}
	return uint64(starts[len(starts)-n])
}

// ReadNew performs the spec.md §4.1 read_new algorithm for a single
// session: stat, truncation detection, UTF-8 decode (fail-soft), split on
// LF keeping the trailing partial segment unconsumed, and JSON-parse each
// complete non-empty segment (malformed lines logged and skipped, but
// still consumed).
func (t *Tailer) ReadNew(sessionID string) {
	t.mu.Lock()
	wf, ok := t.files[sessionID]
	t.mu.Unlock()
	if !ok {
		return
	}

	info, err := os.Stat(wf.path)
	if err != nil {
		if os.IsNotExist(err) {
			if t.onDeleted != nil {
				t.onDeleted(sessionID)
			}
			return
		}
		log.Printf("tailer: stat %s: %v", wf.path, err)
		return
	}

	size := uint64(info.Size())

	t.mu.Lock()
	position := wf.position
	t.mu.Unlock()

	if position > size {
		log.Printf("tailer: session %s truncated (position=%d size=%d), resetting to 0", sessionID, position, size)
		position = 0
	}
	if position == size {
		t.mu.Lock()
		wf.position = position
		t.mu.Unlock()
		return
	}

	f, err := os.Open(wf.path)
	if err != nil {
		log.Printf("tailer: open %s: %v", wf.path, err)
		return
	}
	defer f.Close()

	buf := make([]byte, size-position)
	if _, err := f.ReadAt(buf, int64(position)); err != nil {
		log.Printf("tailer: read %s at %d: %v", wf.path, position, err)
		return
	}

	if !utf8.Valid(buf) {
		log.Printf("tailer: session %s chunk failed UTF-8 decode, skipping to EOF", sessionID)
		t.mu.Lock()
		wf.position = size
		t.mu.Unlock()
		if t.onRecords != nil {
			// Still report the position advance so the checkpoint isn't
			// left stuck behind the bad bytes.
			t.onRecords(sessionID, nil, size)
		}
		return
	}

	lastNL := bytes.LastIndexByte(buf, '\n')
	var complete []byte
	var consumed uint64
	if lastNL < 0 {
		// No complete record in this chunk at all; nothing to consume.
		return
	}
	complete = buf[:lastNL+1]
	consumed = uint64(len(complete))

	var records []json.RawMessage
	for _, line := range bytes.Split(complete, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !json.Valid(line) {
			log.Printf("tailer: session %s skipping malformed JSONL record", sessionID)
			continue
		}
		rec := make(json.RawMessage, len(line))
		copy(rec, line)
		records = append(records, rec)
	}

	newPosition := position + consumed
	t.mu.Lock()
	wf.position = newPosition
	t.mu.Unlock()

	if len(records) > 0 && t.onRecords != nil {
		t.onRecords(sessionID, records, newPosition)
	} else if t.onRecords != nil {
		// still report the position advance even if every record was malformed
		t.onRecords(sessionID, nil, newPosition)
	}
}

func (t *Tailer) watchLoop() {
	defer close(t.doneCh)
	for {
		select {
		case <-t.stopCh:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleFSEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("tailer: fsnotify error: %v", err)
		}
	}
}

// handleFSEvent debounces by directory: repeated events within the
// debounce window collapse into a single ReadNew call per affected
// session, mirroring watchfiles.awatch's debounce=100 in
// original_source/file_watcher.py.
func (t *Tailer) handleFSEvent(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)

	t.pendingMu.Lock()
	if timer, exists := t.pending[dir]; exists {
		timer.Stop()
	}
	t.pending[dir] = time.AfterFunc(t.debounce, func() {
		t.pendingMu.Lock()
		delete(t.pending, dir)
		t.pendingMu.Unlock()
		t.processDirChange(dir)
	})
	t.pendingMu.Unlock()
}

func (t *Tailer) processDirChange(dir string) {
	t.mu.Lock()
	var affected []string
	for sessionID, wf := range t.files {
		if filepath.Dir(wf.path) == dir {
			affected = append(affected, sessionID)
		}
	}
	t.mu.Unlock()

	for _, sessionID := range affected {
		t.ReadNew(sessionID)
	}
}
