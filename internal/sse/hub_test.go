package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude-session-player/watcher/internal/events"
)

func TestServeSSEReplaysThenBroadcasts(t *testing.T) {
	h := NewHub()
	replay := []events.Event{
		{ID: 1, Kind: events.KindAddBlock, Block: &events.Block{ID: "b1", Type: events.BlockUser, Text: "hi"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		_ = h.ServeSSE(ctx, rec, "s1", replay)
		close(done)
	}()

	// Give ServeSSE time to register its subscriber before broadcasting.
	time.Sleep(20 * time.Millisecond)
	h.Broadcast("s1", events.Event{ID: 2, Kind: events.KindAddBlock, Block: &events.Block{ID: "b2", Type: events.BlockAssistant, Text: "yo"}})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "id:1") || !strings.Contains(body, `"b1"`) {
		t.Errorf("expected replayed event in body, got: %q", body)
	}
	if !strings.Contains(body, "id:2") || !strings.Contains(body, `"b2"`) {
		t.Errorf("expected broadcast event in body, got: %q", body)
	}
}

func TestCloseSessionSendsTerminalEvent(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		_ = h.ServeSSE(ctx, rec, "s1", nil)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	h.CloseSession("s1", "session_deleted")
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event:session_ended") || !strings.Contains(body, "session_deleted") {
		t.Errorf("expected terminal session_ended record, got: %q", body)
	}
}

func TestBroadcastDropsSlowSubscriberWithoutBlocking(t *testing.T) {
	h := NewHub()
	sub := &subscriber{id: 1, send: make(chan []byte), closed: make(chan struct{})}
	h.addSubscriber("s1", sub)

	done := make(chan struct{})
	go func() {
		h.Broadcast("s1", events.Event{ID: 1, Kind: events.KindAddBlock, Block: &events.Block{ID: "b", Type: events.BlockUser}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full subscriber channel instead of dropping it")
	}
}

func TestClientCount(t *testing.T) {
	h := NewHub()
	if h.ClientCount("s1") != 0 {
		t.Fatalf("expected 0 clients initially")
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		_ = h.ServeSSE(ctx, rec, "s1", nil)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	if h.ClientCount("s1") != 1 {
		t.Fatalf("expected 1 client after subscribe")
	}
	cancel()
	<-done
}
