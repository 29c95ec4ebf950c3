// Command watcherd runs the claude-session-watcher daemon: it tails
// session transcripts, renders them, and delivers live updates to
// attached Telegram/Slack destinations and SSE subscribers over the
// HTTP surface in internal/httpapi.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/claude-session-player/watcher/internal/config"
	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/httpapi"
	"github.com/claude-session-player/watcher/internal/orchestrator"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/transform"
)

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

func main() {
	host := flag.String("host", "127.0.0.1", "HTTP listen host")
	port := flag.Int("port", 8787, "HTTP listen port")
	configPath := flag.String("config", "", "path to config file (defaults to XDG config dir)")
	stateDir := flag.String("state-dir", "", "override database.state_dir from the config file")
	logLevel := flag.String("log-level", "INFO", "DEBUG, INFO, WARNING, ERROR, or CRITICAL")
	flag.Parse()

	if !validLogLevels[strings.ToUpper(*logLevel)] {
		log.Fatalf("watcherd: invalid --log-level %q", *logLevel)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("watcherd: load config: %v", err)
	}

	dir := cfg.Database.StateDir
	if *stateDir != "" {
		dir = *stateDir
	}
	if dir == "" {
		dir = config.DefaultConfigDir()
	}

	clients, err := buildClients(cfg)
	if err != nil {
		log.Fatalf("watcherd: %v", err)
	}

	orch, err := orchestrator.New(cfgPath, cfg, dir, transform.Default(), clients)
	if err != nil {
		log.Fatalf("watcherd: build orchestrator: %v", err)
	}
	orch.Start()

	mux := http.NewServeMux()
	httpapi.New(orch).SetupRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("watcherd: shutting down")
		orch.Shutdown()
		cancel()
		os.Exit(0)
	}()

	if err := httpapi.ListenAndServe(*host, *port, mux); err != nil {
		log.Fatalf("watcherd: server error: %v", err)
	}
}

// buildClients constructs a PlatformClient per bot platform with
// configured credentials, leaving the rest absent so Attach reports
// ErrCredentialsAbsent for them (spec.md §7 AuthError).
func buildClients(cfg *config.Config) (orchestrator.Clients, error) {
	clients := orchestrator.Clients{}

	if cfg.Bots.TG.Token != "" {
		tg, err := platform.NewTelegram(cfg.Bots.TG.Token)
		if err != nil {
			return nil, err
		}
		clients[destination.KindTelegram] = tg
	}
	if cfg.Bots.SL.Token != "" {
		clients[destination.KindSlack] = platform.NewSlack(cfg.Bots.SL.Token)
	}
	return clients, nil
}
