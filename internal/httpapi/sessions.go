package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/avatarstudio/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.sessions.Create(req.APIKey)
	if err != nil {
		respondKindError(w, err)
		return
	}
	view := sess.View()
	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       view.ID,
		Status:          view.Status,
		StartedAt:       view.StartedAt,
		LastActivityAt:  view.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
		FallbackCatalog: s.catalog.FallbackEnabled(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Selection())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	var req session.SelectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sel, err := sess.Select(r.Context(), req)
	if err != nil {
		respondKindError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"history":   sess.History(),
		"analytics": sess.Analytics(),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	sess.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": sess.Diagnostics.Entries(),
	})
}
