package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/ingest"
	"github.com/ai-history/core/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	pipeline := ingest.New(s, nil, zerolog.Nop())
	server := New("127.0.0.1:0", time.Minute, pipeline, zerolog.Nop())
	ts := httptest.NewServer(server.router())
	t.Cleanup(ts.Close)
	return server, ts, s
}

func TestHandleHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}

func TestHandleSessionStartIssuesToken(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/v1/session/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/session/start error = %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("expected a non-empty session token")
	}
}

func TestHandleImportLiveRequiresToken(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/v1/import/live", "application/json", bytes.NewBufferString("{}"))
	if err != nil {
		t.Fatalf("POST /v1/import/live error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", resp.StatusCode)
	}
}

func TestHandleImportLiveFullFlow(t *testing.T) {
	server, ts, s := newTestServer(t)
	token, _ := server.sessions.Issue()

	payload := LiveCaptureRequest{
		Source:  "chatgpt",
		PageURL: "https://chatgpt.com/c/abc-123",
		Title:   "captured chat",
		Turns: []LiveCaptureTurn{
			{Role: "user", ContentMarkdown: "hello"},
			{Role: "assistant", ContentMarkdown: "hi there"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/import/live", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-AI-History-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/import/live error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var result ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ids, err := s.ConversationIDsByUpdatedAtDesc(req.Context())
	if err != nil {
		t.Fatalf("ConversationIDsByUpdatedAtDesc() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one conversation persisted, got %d", len(ids))
	}
}

func TestOriginCheckMiddlewareRejectsUnknownExtensionOrigin(t *testing.T) {
	_, ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/session/start", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/session/start error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", resp.StatusCode)
	}
}

func TestOriginCheckMiddlewareAllowsExtensionOrigin(t *testing.T) {
	_, ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/session/start", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "chrome-extension://abcdefg")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/session/start error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}
