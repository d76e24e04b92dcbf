// Package server exposes the orchestration core over a small JSON HTTP API.
// It is a thin adapter: transport auth, rate limiting, and webshop adapters
// live in front of it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shopdesk/internal/dispatch"
	"shopdesk/internal/logging"
	"shopdesk/internal/session"
)

// Server is the HTTP API server.
type Server struct {
	engine *dispatch.Engine
	store  session.Store
	addr   string
	http   *http.Server
}

// New creates the API server bound to addr (host:port).
func New(engine *dispatch.Engine, store session.Store, addr string) *Server {
	s := &Server{engine: engine, store: store, addr: addr}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/consent", s.handlePutConsent)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then drains with a shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	logging.Server("listening on %s", listener.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Handler returns the root handler (used by tests via httptest).
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r)
	})
}

// turnRequest is the POST /v1/turns payload.
type turnRequest struct {
	SessionID   string            `json:"session_id"`
	Message     string            `json:"message"`
	UserContext map[string]string `json:"user_context,omitempty"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), req.SessionID, req.Message, req.UserContext)
	switch {
	case errors.Is(err, dispatch.ErrEmptyMessage), errors.Is(err, dispatch.ErrEmptySession):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.ServerError("handleTurn: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// sessionSummary is the GET /v1/sessions/{id} response.
type sessionSummary struct {
	SessionID      string   `json:"session_id"`
	ActiveCategory string   `json:"active_category"`
	ErrorCount     int      `json:"error_count"`
	TurnCount      int      `json:"turn_count"`
	ConsentFlags   []string `json:"consent_flags"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	state := s.store.Load(r.Context(), id)
	flags := make([]string, 0, len(state.ComplianceFlags))
	for flag, granted := range state.ComplianceFlags {
		if granted {
			flags = append(flags, flag)
		}
	}

	writeJSON(w, http.StatusOK, sessionSummary{
		SessionID:      state.SessionID,
		ActiveCategory: state.ActiveCategory,
		ErrorCount:     state.ErrorCount,
		TurnCount:      len(state.TurnHistory),
		ConsentFlags:   flags,
	})
}

// consentRequest is the PUT /v1/sessions/{id}/consent payload.
type consentRequest struct {
	Flag    string `json:"flag"`
	Granted bool   `json:"granted"`
}

func (s *Server) handlePutConsent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Flag = strings.TrimSpace(req.Flag)
	if id == "" || req.Flag == "" {
		writeError(w, http.StatusBadRequest, "session id and flag are required")
		return
	}

	// The core only reads compliance_flags; this endpoint is the consent
	// source mutating them through the store.
	state := s.store.Load(r.Context(), id)
	if state.ComplianceFlags == nil {
		state.ComplianceFlags = make(map[string]bool)
	}
	if req.Granted {
		state.ComplianceFlags[req.Flag] = true
	} else {
		delete(state.ComplianceFlags, req.Flag)
	}
	if err := s.store.Save(r.Context(), state); err != nil {
		logging.ServerError("handlePutConsent: save failed for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to persist consent")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "flag": req.Flag, "granted": req.Granted})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
