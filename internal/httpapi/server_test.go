package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude-session-player/watcher/internal/config"
	"github.com/claude-session-player/watcher/internal/destination"
	"github.com/claude-session-player/watcher/internal/orchestrator"
	"github.com/claude-session-player/watcher/internal/platform"
	"github.com/claude-session-player/watcher/internal/transform"
)

// stubClient is a minimal platform.Client double used to exercise the HTTP
// surface without talking to a real Telegram/Slack SDK.
type stubClient struct {
	validateErr error
	sendCount   int
}

func (s *stubClient) Validate(ctx context.Context) error { return s.validateErr }

func (s *stubClient) Send(ctx context.Context, identifier string, content platform.RenderedContent) (string, error) {
	s.sendCount++
	return "msg-1", nil
}

func (s *stubClient) Update(ctx context.Context, identifier, messageID string, content platform.RenderedContent) (bool, error) {
	return true, nil
}

func newTestServer(t *testing.T, clients orchestrator.Clients) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	cfg := config.DefaultConfig()
	orch, err := orchestrator.New("", cfg, t.TempDir(), transform.Default(), clients)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	orch.Start()
	t.Cleanup(orch.Shutdown)
	return New(orch), orch
}

func writeSessionFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	line := `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hi"}]}}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleAttachSucceeds(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{destination.KindTelegram: &stubClient{}})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	path := writeSessionFile(t)
	rec := doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Path:        path,
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
		Preset:      "desktop",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp attachResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Attached || resp.MessageID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleAttachWithoutCredentialsReturns401(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	path := writeSessionFile(t)
	rec := doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Path:        path,
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
		Preset:      "desktop",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAttachInvalidDestinationReturns400(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{destination.KindTelegram: &stubClient{}})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rec := doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Destination: destinationDTO{Type: "XX"},
		Preset:      "desktop",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAttachMissingPathReturns404(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{destination.KindTelegram: &stubClient{}})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rec := doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Path:        "/nonexistent/path.jsonl",
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
		Preset:      "desktop",
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDetachSuccessAndAbsent(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{destination.KindTelegram: &stubClient{}})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	path := writeSessionFile(t)
	doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Path:        path,
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
		Preset:      "desktop",
	})

	rec := doRequest(t, mux, http.MethodPost, "/detach", detachRequest{
		SessionID:   "s1",
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, mux, http.MethodPost, "/detach", detachRequest{
		SessionID:   "s1",
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat detach, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSessionsReportsAttachedSession(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{destination.KindTelegram: &stubClient{}})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	path := writeSessionFile(t)
	doRequest(t, mux, http.MethodPost, "/attach", attachRequest{
		SessionID:   "s1",
		Path:        path,
		Destination: destinationDTO{Type: "TG", ChatID: "100"},
		Preset:      "desktop",
	})

	rec := doRequest(t, mux, http.MethodGet, "/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp sessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].SessionID != "s1" {
		t.Fatalf("unexpected sessions response: %+v", resp)
	}
}

func TestHandleHealthReportsStatus(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rec := doRequest(t, mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestHandleSessionEventsUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t, orchestrator.Clients{})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rec := doRequest(t, mux, http.MethodGet, "/sessions/unknown/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
