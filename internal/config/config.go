// Package config loads and persists the watcher's YAML configuration file:
// bot credentials, attached-session destinations, and the inert
// index/search/database sections carried for file-shape compatibility with
// original_source/claude_session_player/watcher/config.py. Adapted from the
// teacher's internal/config/config.go (same yaml.v3 + Load/LoadOrDefault
// split, same XDG-based default config directory).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TelegramBot holds Telegram bot credentials and delivery mode.
type TelegramBot struct {
	Token      string `yaml:"token"`
	Mode       string `yaml:"mode"` // "webhook" or "polling"
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// SlackBot holds Slack bot credentials.
type SlackBot struct {
	Token         string `yaml:"token"`
	SigningSecret string `yaml:"signing_secret"`
}

// Bots groups both platforms' credentials (spec.md §3 BotCredentials).
type Bots struct {
	TG TelegramBot `yaml:"tg"`
	SL SlackBot    `yaml:"sl"`
}

// IndexConfig is carried for file-shape compatibility only; the watcher
// does not implement session search/indexing (spec.md Non-goals).
type IndexConfig struct {
	Paths                 []string `yaml:"paths"`
	RefreshIntervalSecs   int      `yaml:"refresh_interval"`
	MaxSessionsPerProject int      `yaml:"max_sessions_per_project"`
	IncludeSubagents      bool     `yaml:"include_subagents"`
	Persist               bool     `yaml:"persist"`
}

// SearchConfig is likewise inert; carried for round-trip fidelity.
type SearchConfig struct {
	DefaultLimit    int    `yaml:"default_limit"`
	MaxLimit        int    `yaml:"max_limit"`
	DefaultSort     string `yaml:"default_sort"`
	StateTTLSeconds int    `yaml:"state_ttl_seconds"`
}

// BackupConfig is nested under DatabaseConfig and is likewise inert.
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	KeepCount int    `yaml:"keep_count"`
}

// DatabaseConfig carries the state directory (the one field this watcher
// actually consumes) plus inert checkpoint/backup knobs.
type DatabaseConfig struct {
	StateDir              string       `yaml:"state_dir"`
	CheckpointIntervalSec int          `yaml:"checkpoint_interval"`
	VacuumOnStartup       bool         `yaml:"vacuum_on_startup"`
	Backup                BackupConfig `yaml:"backup"`
}

// TelegramTarget is one Telegram destination entry in SessionEntry.
type TelegramTarget struct {
	ChatID   int64 `yaml:"chat_id"`
	ThreadID *int  `yaml:"thread_id,omitempty"`
}

// SlackTarget is one Slack destination entry in SessionEntry.
type SlackTarget struct {
	Channel string `yaml:"channel"`
}

// SessionDestinations groups a session's configured output targets.
type SessionDestinations struct {
	TG []TelegramTarget `yaml:"TG,omitempty"`
	SL []SlackTarget    `yaml:"SL,omitempty"`
}

// SessionEntry is one entry in the map-form `sessions` config section.
type SessionEntry struct {
	Path         string              `yaml:"path"`
	Destinations SessionDestinations `yaml:"destinations"`
}

// legacySessionEntry is the old list-form shape: [{id, path}, ...].
type legacySessionEntry struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// Config is the top-level configuration document.
type Config struct {
	Bots     Bots                    `yaml:"bots"`
	Index    IndexConfig             `yaml:"index"`
	Search   SearchConfig            `yaml:"search"`
	Database DatabaseConfig          `yaml:"database"`
	Sessions map[string]SessionEntry `yaml:"sessions"`
}

// rawConfig lets Sessions be decoded as either the old list form or the
// new map form, per spec.md §6.
type rawConfig struct {
	Bots     Bots            `yaml:"bots"`
	Index    *IndexConfig    `yaml:"index"`
	Search   *SearchConfig   `yaml:"search"`
	Database *DatabaseConfig `yaml:"database"`
	Sessions yaml.Node       `yaml:"sessions"`
}

func defaultIndex() IndexConfig {
	home, _ := os.UserHomeDir()
	return IndexConfig{
		Paths:                 []string{filepath.Join(home, ".claude", "projects")},
		RefreshIntervalSecs:   300,
		MaxSessionsPerProject: 100,
		IncludeSubagents:      false,
		Persist:               true,
	}
}

func defaultSearch() SearchConfig {
	return SearchConfig{
		DefaultLimit:    5,
		MaxLimit:        10,
		DefaultSort:     "recent",
		StateTTLSeconds: 300,
	}
}

func defaultDatabase() DatabaseConfig {
	home, _ := os.UserHomeDir()
	return DatabaseConfig{
		StateDir:              filepath.Join(home, ".claude-session-player", "state"),
		CheckpointIntervalSec: 300,
		VacuumOnStartup:       false,
		Backup: BackupConfig{
			Enabled:   false,
			Path:      filepath.Join(home, ".claude-session-player", "backups"),
			KeepCount: 3,
		},
	}
}

// DefaultConfig returns a config with every section present and defaulted,
// and no sessions attached, matching migrate_config's fill-in-the-blanks
// behaviour in original_source/config.py.
func DefaultConfig() *Config {
	return &Config{
		Bots:     Bots{TG: TelegramBot{Mode: "webhook"}},
		Index:    defaultIndex(),
		Search:   defaultSearch(),
		Database: defaultDatabase(),
		Sessions: map[string]SessionEntry{},
	}
}

// Load reads and parses the config file at path, migrating the legacy
// list-form `sessions` section and filling any missing index/search/
// database blocks with defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{Bots: raw.Bots}
	if raw.Index != nil {
		cfg.Index = *raw.Index
	} else {
		cfg.Index = defaultIndex()
	}
	if raw.Search != nil {
		cfg.Search = *raw.Search
	} else {
		cfg.Search = defaultSearch()
	}
	if raw.Database != nil {
		cfg.Database = *raw.Database
	} else {
		cfg.Database = defaultDatabase()
	}
	if cfg.Bots.TG.Mode == "" {
		cfg.Bots.TG.Mode = "webhook"
	}

	cfg.Sessions, err = decodeSessions(&raw.Sessions)
	if err != nil {
		return nil, fmt.Errorf("config: decode sessions: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadOrDefault mirrors Load but returns DefaultConfig() (with env
// overrides still applied) when the file does not exist, matching the
// teacher's config.LoadOrDefault.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

// decodeSessions accepts either the legacy list form `[{id, path}, ...]`
// (migrated in-memory to the map form, with empty destination lists) or
// the new map form, per original_source/config.py's _is_old_format.
func decodeSessions(node *yaml.Node) (map[string]SessionEntry, error) {
	if node == nil || node.Kind == 0 {
		return map[string]SessionEntry{}, nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var legacy []legacySessionEntry
		if err := node.Decode(&legacy); err != nil {
			return nil, err
		}
		out := make(map[string]SessionEntry, len(legacy))
		for _, entry := range legacy {
			out[entry.ID] = SessionEntry{Path: entry.Path}
		}
		return out, nil
	case yaml.MappingNode:
		var sessions map[string]SessionEntry
		if err := node.Decode(&sessions); err != nil {
			return nil, err
		}
		if sessions == nil {
			sessions = map[string]SessionEntry{}
		}
		return sessions, nil
	default:
		return map[string]SessionEntry{}, nil
	}
}

// applyEnvOverrides applies the five environment overrides specified in
// spec.md §6, matching original_source/config.py's apply_env_overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLAUDE_INDEX_PATHS"); v != "" {
		var paths []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				paths = append(paths, trimmed)
			}
		}
		if len(paths) > 0 {
			cfg.Index.Paths = paths
		}
	}
	if v := os.Getenv("CLAUDE_INDEX_REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.RefreshIntervalSecs = n
		}
	}
	if v := os.Getenv("TELEGRAM_WEBHOOK_URL"); v != "" {
		cfg.Bots.TG.WebhookURL = v
	}
	if v := os.Getenv("CLAUDE_STATE_DIR"); v != "" {
		cfg.Database.StateDir = v
	}
	if v := os.Getenv("CLAUDE_DB_CHECKPOINT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.CheckpointIntervalSec = n
		}
	}
}

// Save writes cfg to path using the teacher's atomic tempfile+rename
// discipline (see internal/statestore for the same pattern applied to
// checkpoints). Sessions are always written in map form, completing the
// legacy-list migration on first write.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config_*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename config file: %w", err)
	}
	return nil
}

// SweepTempFiles removes leftover `.config_*.yaml.tmp` files from a prior
// process that crashed between CreateTemp and Rename in Save (spec.md
// §4.2: crash debris must be recognisable and cleaned on next start).
func SweepTempFiles(path string) error {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".config_*.yaml.tmp"))
	if err != nil {
		return fmt.Errorf("config: glob temp config files: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: remove stale temp config file %s: %w", m, err)
		}
	}
	return nil
}

// DefaultConfigDir returns the XDG-compliant default config directory,
// matching the teacher's defaultConfigDir.
func DefaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "claude-session-player")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-session-player")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
