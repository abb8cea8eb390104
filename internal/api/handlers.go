package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/studyowl/coursechat/internal/index"
	"github.com/studyowl/coursechat/internal/rag"
	"github.com/studyowl/coursechat/internal/tools"
)

type handler struct {
	system QueryService
	logger *slog.Logger
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type sessionRequest struct {
	OldSessionID string `json:"oldSessionId"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}

	answer, err := h.system.Query(r.Context(), req.Query, req.SessionID)
	if err != nil {
		h.logger.Error("query failed", "error", err, "session_id", req.SessionID)
		switch {
		case errors.Is(err, index.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "index_unavailable", "semantic index unavailable")
		case errors.Is(err, rag.ErrGenerationFailed):
			writeError(w, http.StatusBadGateway, "generation_failed", "answer generation failed")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	// An answer without sources still serializes "sources": [].
	if answer.Sources == nil {
		answer.Sources = []tools.Source{}
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
			return
		}
	}

	id := h.system.NewSession(req.OldSessionID)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session id is required")
		return
	}
	h.system.DeleteSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) courseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.system.GetStats(r.Context())
	if err != nil {
		h.logger.Error("course stats failed", "error", err)
		if errors.Is(err, index.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "index_unavailable", "semantic index unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if stats.CourseTitles == nil {
		stats.CourseTitles = []string{}
	}
	writeJSON(w, http.StatusOK, stats)
}
