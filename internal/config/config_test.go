package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Bots.TG.Mode != "webhook" {
		t.Fatalf("expected default TG mode webhook, got %q", cfg.Bots.TG.Mode)
	}
	if cfg.Index.RefreshIntervalSecs != 300 {
		t.Fatalf("expected default refresh interval 300, got %d", cfg.Index.RefreshIntervalSecs)
	}
	if cfg.Sessions == nil {
		t.Fatalf("expected non-nil empty Sessions map")
	}
}

func TestLoadMigratesLegacySessionList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
bots:
  tg:
    token: "abc"
sessions:
  - id: sess-1
    path: /home/user/.claude/projects/foo/sess-1.jsonl
  - id: sess-2
    path: /home/user/.claude/projects/foo/sess-2.jsonl
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("expected 2 migrated sessions, got %d", len(cfg.Sessions))
	}
	entry, ok := cfg.Sessions["sess-1"]
	if !ok {
		t.Fatalf("expected sess-1 to be present after migration")
	}
	if entry.Path != "/home/user/.claude/projects/foo/sess-1.jsonl" {
		t.Fatalf("unexpected path: %q", entry.Path)
	}
	if len(entry.Destinations.TG) != 0 || len(entry.Destinations.SL) != 0 {
		t.Fatalf("migrated legacy entries should have empty destinations")
	}
	// index/search/database are missing from the file and must be defaulted.
	if cfg.Index.RefreshIntervalSecs != 300 {
		t.Fatalf("expected defaulted index block")
	}
	if cfg.Database.StateDir == "" {
		t.Fatalf("expected defaulted database block")
	}
}

func TestLoadMapFormSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
sessions:
  sess-1:
    path: /x/sess-1.jsonl
    destinations:
      TG:
        - chat_id: -1001234
          thread_id: 7
      SL:
        - channel: C0123456
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry := cfg.Sessions["sess-1"]
	if len(entry.Destinations.TG) != 1 || entry.Destinations.TG[0].ChatID != -1001234 {
		t.Fatalf("unexpected TG destinations: %+v", entry.Destinations.TG)
	}
	if entry.Destinations.TG[0].ThreadID == nil || *entry.Destinations.TG[0].ThreadID != 7 {
		t.Fatalf("expected thread_id 7")
	}
	if len(entry.Destinations.SL) != 1 || entry.Destinations.SL[0].Channel != "C0123456" {
		t.Fatalf("unexpected SL destinations: %+v", entry.Destinations.SL)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CLAUDE_INDEX_PATHS", "/a,/b, /c")
	t.Setenv("CLAUDE_INDEX_REFRESH_INTERVAL", "42")
	t.Setenv("TELEGRAM_WEBHOOK_URL", "https://example.com/hook")
	t.Setenv("CLAUDE_STATE_DIR", "/tmp/state")
	t.Setenv("CLAUDE_DB_CHECKPOINT_INTERVAL", "99")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if got := cfg.Index.Paths; len(got) != 3 || got[0] != "/a" || got[2] != "/c" {
		t.Fatalf("unexpected index paths: %+v", got)
	}
	if cfg.Index.RefreshIntervalSecs != 42 {
		t.Fatalf("unexpected refresh interval: %d", cfg.Index.RefreshIntervalSecs)
	}
	if cfg.Bots.TG.WebhookURL != "https://example.com/hook" {
		t.Fatalf("unexpected webhook url: %q", cfg.Bots.TG.WebhookURL)
	}
	if cfg.Database.StateDir != "/tmp/state" {
		t.Fatalf("unexpected state dir: %q", cfg.Database.StateDir)
	}
	if cfg.Database.CheckpointIntervalSec != 99 {
		t.Fatalf("unexpected checkpoint interval: %d", cfg.Database.CheckpointIntervalSec)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Sessions["sess-1"] = SessionEntry{Path: "/x.jsonl"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if loaded.Sessions["sess-1"].Path != "/x.jsonl" {
		t.Fatalf("round-trip lost session entry")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
}
