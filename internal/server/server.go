// Package server is the HTTP surface: the stateless streaming chat endpoint,
// the session API driven by the agent, and the document catalogue.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/comigor/cryptosec-go/internal/agent"
	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/documents"
	"github.com/comigor/cryptosec-go/internal/llm"
	"github.com/comigor/cryptosec-go/internal/logger"
	"github.com/comigor/cryptosec-go/internal/mode"
	"github.com/comigor/cryptosec-go/internal/session"
)

type Server struct {
	agent    *agent.Agent
	streamer llm.Streamer
	docs     documents.Repository
}

// New returns the routed handler.
func New(a *agent.Agent, streamer llm.Streamer, docs documents.Repository) http.Handler {
	s := &Server{agent: a, streamer: streamer, docs: docs}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /chat/{mode}", s.handleChat)

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/select", s.handleSelectSession)
	mux.HandleFunc("GET /sessions/{id}/export", s.handleExportSession)

	mux.HandleFunc("POST /turns", s.handleSubmitTurn)

	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)

	return chainMiddlewares(mux, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatRequest struct {
	Messages []chat.Turn `json:"messages"`
}

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type submitTurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode"`
	Text      string `json:"text"`
}

type submitTurnResponse struct {
	SessionID  string        `json:"session_id"`
	ExchangeID string        `json:"exchange_id"`
	Mode       mode.Mode     `json:"mode"`
	Outcome    string        `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Message    chat.Snapshot `json:"message"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat streams one stateless exchange: the client sends the full
// history on every call.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	m, err := mode.Parse(r.PathValue("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		badRequest(w, "messages must not be empty")
		return
	}
	for i, t := range req.Messages {
		if !t.Role.Valid() {
			badRequest(w, fmt.Sprintf("messages[%d]: unknown role %q", i, t.Role))
			return
		}
	}
	prompt, err := mode.ComposePrompt(m)
	if err != nil {
		writeError(w, err)
		return
	}

	log := logger.L.With("mode", m, "history", len(req.Messages))
	log.Info("chat stream started")

	ds := newDataStream(w)
	for f := range s.streamer.Stream(r.Context(), req.Messages, prompt) {
		switch f.Kind {
		case chat.FragmentText:
			if err := ds.text(f.Text); err != nil {
				log.Warn("chat stream write failed", "error", err)
				return
			}
		case chat.FragmentDone:
			_ = ds.finish("stop")
			log.Info("chat stream completed")
			return
		case chat.FragmentFailed:
			_ = ds.error(f.Err.Error())
			_ = ds.finish("error")
			log.Warn("chat stream failed", "reason", chat.Reason(f.Err), "error", f.Err)
			return
		}
	}
	log.Info("chat stream cancelled by client")
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.agent.Store().List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	id := s.agent.Store().Create(req.Title)
	v, err := s.agent.Store().Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.agent.Store().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		badRequest(w, "title must not be empty")
		return
	}
	id := r.PathValue("id")
	if err := s.agent.Store().Rename(id, req.Title); err != nil {
		writeError(w, err)
		return
	}
	s.handleGetSession(w, r)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Store().Select(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.handleGetSession(w, r)
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := s.agent.Store().Export(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+id+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// handleSubmitTurn submits to the given (or active) session and waits for the
// reply. A client disconnect stops the wait, not the exchange.
func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text must not be empty")
		return
	}
	if req.Mode == "" {
		req.Mode = string(mode.Normal)
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}

	var ex *agent.Exchange
	if req.SessionID != "" {
		ex, err = s.agent.SubmitTo(r.Context(), req.SessionID, m, req.Text)
	} else {
		ex, err = s.agent.Submit(r.Context(), m, req.Text)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := ex.Wait(r.Context())
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, submitTurnResponse{
		SessionID:  ex.SessionID,
		ExchangeID: ex.ID,
		Mode:       ex.Mode,
		Outcome:    outcome.String(),
		Reason:     chat.Reason(ex.Reply.Err()),
		Message:    ex.Reply.Snapshot(),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	docs = documents.ByType(docs, r.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mode.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, documents.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logger.L.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
