package render

import (
	"testing"

	"github.com/claude-session-player/watcher/internal/events"
)

func TestFoldGroupsAssistantTurn(t *testing.T) {
	evts := []events.Event{
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "u1", Type: events.BlockUser, Text: "hi"}},
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "a1", Type: events.BlockAssistant, Text: "hello"}},
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "t1", Type: events.BlockToolCall, ToolUseID: "tu1", ToolCalls: []events.ToolCall{{ToolUseID: "tu1", Name: "Bash"}}}},
		{Kind: events.KindUpdateBlock, Block: &events.Block{ID: "t1", Text: "done"}},
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "d1", Type: events.BlockDuration, DurationMS: 1500}},
	}
	doc := Fold(PresetDesktop, evts)
	if len(doc.Segments) != 2 {
		t.Fatalf("expected 2 segments (user, turn), got %d: %+v", len(doc.Segments), doc.Segments)
	}
	if doc.Segments[0].User == nil || doc.Segments[0].User.Text != "hi" {
		t.Fatalf("expected first segment to be the USER block")
	}
	turn := doc.Segments[1].Turn
	if turn == nil {
		t.Fatalf("expected second segment to be a Turn")
	}
	if turn.AssistantText != "hello" {
		t.Errorf("unexpected assistant text: %q", turn.AssistantText)
	}
	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0].Result != "done" {
		t.Errorf("expected tool call result merged in, got %+v", turn.ToolCalls)
	}
	if !turn.HasDuration || turn.DurationMS != 1500 {
		t.Errorf("expected duration 1500ms, got %+v", turn)
	}
}

func TestFoldDropsThinkingBlocks(t *testing.T) {
	evts := []events.Event{
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "th1", Type: events.BlockThinking, Text: "pondering"}},
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "u1", Type: events.BlockUser, Text: "hi"}},
	}
	doc := Fold(PresetDesktop, evts)
	if len(doc.Segments) != 1 || doc.Segments[0].User == nil {
		t.Fatalf("expected THINKING block to be dropped entirely, got %+v", doc.Segments)
	}
}

func TestFoldClearAllWipesPriorSegments(t *testing.T) {
	evts := []events.Event{
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "u1", Type: events.BlockUser, Text: "hi"}},
		{Kind: events.KindClearAll},
		{Kind: events.KindAddBlock, Block: &events.Block{ID: "c1", Type: events.BlockContextCompacted}},
	}
	doc := Fold(PresetDesktop, evts)
	if len(doc.Segments) != 1 || doc.Segments[0].ContextCompacted == nil {
		t.Fatalf("expected ClearAll to wipe the USER block, got %+v", doc.Segments)
	}
}

func TestCacheRebuildAndGet(t *testing.T) {
	c := NewCache()
	if c.Get("s1", PresetDesktop) != nil {
		t.Fatalf("expected nil before any Rebuild")
	}
	evts := []events.Event{{Kind: events.KindAddBlock, Block: &events.Block{ID: "u1", Type: events.BlockUser, Text: "hi"}}}
	doc := c.Rebuild("s1", PresetDesktop, evts)
	if got := c.Get("s1", PresetDesktop); got != doc {
		t.Fatalf("expected Get to return the just-rebuilt document")
	}
	if c.Get("s1", PresetMobile) != nil {
		t.Fatalf("expected mobile preset to remain unbuilt")
	}
	c.Evict("s1")
	if c.Get("s1", PresetDesktop) != nil {
		t.Fatalf("expected Evict to clear both presets")
	}
}
