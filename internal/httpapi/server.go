// Package httpapi implements the watcher's external HTTP surface (spec.md
// §6): /attach, /detach, /sessions, /sessions/{id}/events and /health.
// Grounded on the teacher's internal/ws/server.go: a plain http.ServeMux,
// one handler method per route, single-line JSON error bodies via
// writeError — no router library, matching the teacher's own texture.
package httpapi

import (
	"fmt"
	"log"
	"net/http"

	"github.com/claude-session-player/watcher/internal/orchestrator"
)

// Server wires the Orchestrator to the HTTP surface.
type Server struct {
	orch *orchestrator.Orchestrator
}

// New constructs a Server backed by orch.
func New(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

// SetupRoutes registers every handler on mux, mirroring the teacher's
// Server.SetupRoutes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/attach", s.handleAttach)
	mux.HandleFunc("/detach", s.handleDetach)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionEvents)
	mux.HandleFunc("/health", s.handleHealth)
}

// ListenAndServe starts the HTTP server, matching the teacher's
// ws.ListenAndServe helper.
func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("httpapi: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
