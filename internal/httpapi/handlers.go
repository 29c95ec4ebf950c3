package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/render"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// toDestination validates and converts the wire-level destinationDTO into
// an internal/destination.Destination, per spec.md §6's /attach validation
// rules.
func toDestination(dto destinationDTO) (destination.Destination, error) {
	switch strings.ToUpper(dto.Type) {
	case "TG":
		if strings.TrimSpace(dto.ChatID) == "" {
			return destination.Destination{}, errors.New("destination.chat_id must be non-empty")
		}
		chatID, err := strconv.ParseInt(dto.ChatID, 10, 64)
		if err != nil {
			return destination.Destination{}, errors.New("destination.chat_id must be an integer")
		}
		hasThread := dto.ThreadID != nil
		threadID := 0
		if hasThread {
			threadID = *dto.ThreadID
			if threadID == 1 {
				return destination.Destination{}, errors.New("thread_id 1 is the reserved General topic")
			}
			if threadID <= 0 {
				return destination.Destination{}, errors.New("destination.thread_id must be a positive integer")
			}
		}
		return destination.Destination{
			Kind:       destination.KindTelegram,
			Identifier: destination.FormatTelegramIdentifier(chatID, threadID, hasThread),
		}, nil
	case "SL":
		if strings.TrimSpace(dto.Channel) == "" {
			return destination.Destination{}, errors.New("destination.channel must be non-empty")
		}
		return destination.Destination{Kind: destination.KindSlack, Identifier: dto.Channel}, nil
	default:
		return destination.Destination{}, errors.New(`destination.type must be "TG" or "SL"`)
	}
}

func fromDestination(dest destination.Destination) destinationDTO {
	switch dest.Kind {
	case destination.KindTelegram:
		chatID, threadID, hasThread, err := destination.ParseTelegramIdentifier(dest.Identifier)
		if err != nil {
			return destinationDTO{Type: "TG"}
		}
		dto := destinationDTO{Type: "TG", ChatID: strconv.FormatInt(chatID, 10)}
		if hasThread {
			t := threadID
			dto.ThreadID = &t
		}
		return dto
	case destination.KindSlack:
		return destinationDTO{Type: "SL", Channel: dest.Identifier}
	default:
		return destinationDTO{}
	}
}

func toPreset(s string) (render.Preset, error) {
	switch s {
	case "", string(render.PresetDesktop):
		return render.PresetDesktop, nil
	case string(render.PresetMobile):
		return render.PresetMobile, nil
	default:
		return "", errors.New(`preset must be "desktop" or "mobile"`)
	}
}

// handleAttach implements POST /attach (spec.md §6).
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id must be non-empty")
		return
	}
	if req.Path != "" && !filepath.IsAbs(req.Path) {
		writeError(w, http.StatusBadRequest, "path must be absolute")
		return
	}
	dest, err := toDestination(req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	preset, err := toPreset(req.Preset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path != "" {
		if _, err := os.Stat(req.Path); err != nil {
			writeError(w, http.StatusNotFound, "source file not found")
			return
		}
	}

	attached, messageID, replayed, err := s.orch.Attach(r.Context(), req.SessionID, req.Path, dest, preset, req.ReplayCount)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrCredentialsAbsent):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, platform.ErrCredentialsInvalid):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, attachResponse{
		Attached:       attached,
		SessionID:      req.SessionID,
		Destination:    fromDestination(dest),
		Preset:         string(preset),
		MessageID:      messageID,
		ReplayedEvents: replayed,
	})
}

// handleDetach implements POST /detach (spec.md §6).
func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req detachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id must be non-empty")
		return
	}
	dest, err := toDestination(req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.orch.Detach(req.SessionID, dest) {
		writeError(w, http.StatusNotFound, "destination not attached")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessions implements GET /sessions (spec.md §6).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summaries := s.orch.Sessions()
	out := make([]sessionDTO, 0, len(summaries))
	for _, sm := range summaries {
		out = append(out, sessionDTO{
			SessionID:    sm.SessionID,
			Path:         sm.Path,
			Destinations: sm.Destinations,
			SSEClients:   sm.SSEClients,
		})
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

// handleSessionEvents implements GET /sessions/{id}/events (spec.md §6).
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	sessionID, suffix, ok := strings.Cut(path, "/")
	if !ok || suffix != "events" || sessionID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.orch.KnowsSession(sessionID) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var lastEventID int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	if err := s.orch.ServeEvents(r.Context(), w, sessionID, lastEventID); err != nil {
		// The connection is already streaming by the time ServeEvents can
		// fail; there is nothing further to report to the client.
		return
	}
}

// handleHealth implements GET /health (spec.md §6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "healthy",
		UptimeSeconds:   s.orch.UptimeSeconds(),
		SessionsWatched: s.orch.SessionsWatchedCount(),
		Bots: map[string]string{
			"TG": s.orch.BotStatus(destination.KindTelegram),
			"SL": s.orch.BotStatus(destination.KindSlack),
		},
	})
}
