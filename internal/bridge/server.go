// Package bridge implements the loopback HTTP server a browser extension
// talks to for live-capture imports, per spec.md §4.8. Grounded on
// qzbxw-EGO's cmd/api/main.go chi+cors+graceful-shutdown wiring, adapted
// from a public multi-origin API to a single-purpose loopback bridge.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/ingest"
	"github.com/ai-history/core/internal/sanitize"
)

// Server is the loopback bridge described in spec.md §4.8.
type Server struct {
	addr     string
	sessions *sessionStore
	pipeline *ingest.Pipeline
	log      zerolog.Logger
	http     *http.Server
}

func New(addr string, sessionTTL time.Duration, pipeline *ingest.Pipeline, log zerolog.Logger) *Server {
	s := &Server{
		addr:     addr,
		sessions: newSessionStore(sessionTTL),
		pipeline: pipeline,
		log:      log.With().Str("component", "bridge").Logger(),
	}
	s.http = &http.Server{Addr: addr, Handler: s.router()}
	return s
}

// Sessions exposes the bridge's session store so the in-process command
// dispatcher's start_bridge_session shares the same token pool as the HTTP
// endpoint.
func (s *Server) Sessions() *sessionStore {
	return s.sessions
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)
	r.Use(originCheckMiddleware)

	r.Get("/v1/health", s.handleHealth)
	r.Post("/v1/session/start", s.handleSessionStart)
	r.Options("/v1/session/start", preflight)
	r.Post("/v1/import/live", s.handleImportLive)
	r.Options("/v1/import/live", preflight)
	return r
}

// originCheckMiddleware enforces spec.md §4.8's runtime origin check: POSTs
// carrying an Origin header must have it begin with chrome-extension:// or
// edge-extension://; requests without one (native desktop callers) pass.
func originCheckMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin != "" && !strings.HasPrefix(origin, "chrome-extension://") && !strings.HasPrefix(origin, "edge-extension://") {
				writeError(w, http.StatusForbidden, "origin_not_allowed")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	token, expiresAt := s.sessions.Issue()
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

// LiveCaptureRequest is the extension's submitted payload, per spec.md §6.
type LiveCaptureRequest struct {
	Source     string            `json:"source"`
	PageURL    string            `json:"pageUrl"`
	Title      string            `json:"title"`
	Turns      []LiveCaptureTurn `json:"turns"`
	CapturedAt string            `json:"capturedAt"`
	Version    string            `json:"version"`
}

// LiveCaptureTurn is one turn inside a LiveCaptureRequest.
type LiveCaptureTurn struct {
	Role            string `json:"role"`
	ContentMarkdown string `json:"contentMarkdown"`
	ThoughtMarkdown string `json:"thoughtMarkdown"`
}

func (s *Server) handleImportLive(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-AI-History-Token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if !s.sessions.Verify(token) {
		writeError(w, http.StatusUnauthorized, "invalid_or_expired_token")
		return
	}

	var req LiveCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	raw := make([]sanitize.RawTurn, len(req.Turns))
	for i, t := range req.Turns {
		raw[i] = sanitize.RawTurn{Role: t.Role, ContentMarkdown: t.ContentMarkdown, ThoughtMarkdown: t.ThoughtMarkdown}
	}

	sourceConversationID, turns, err := sanitize.Sanitize(req.Source, req.PageURL, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no_valid_content")
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), ingest.Batch{
		Conversations: []ingest.NormalizedConversation{{
			Source:               req.Source,
			SourceConversationID: &sourceConversationID,
			Title:                req.Title,
			Turns:                turns,
		}},
		Strategy: ingest.StrategyOverwrite,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("live capture ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion_failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Start runs the bridge server until ctx is cancelled, then shuts down
// gracefully, mirroring qzbxw-EGO's signal.NotifyContext + Server.Shutdown
// wiring.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("bridge server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
