package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/newsflash/internal/sandbox"
)

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// SandboxMessageResponse is a captured message with its raw content
type SandboxMessageResponse struct {
	*sandbox.Message
	Raw string `json:"raw"`
}

// handleSandboxList handles GET /api/v1/sandbox/messages
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	msgs, err := s.deps.Sandbox.List(r.Context(), sandbox.ListFilter{
		Recipient: q.Get("recipient"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	s.sendJSON(w, http.StatusOK, SandboxListResponse{Messages: msgs, Total: len(msgs)})
}

// handleSandboxGet handles GET /api/v1/sandbox/messages/{id}
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := s.deps.Sandbox.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get sandbox message", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	if msg == nil {
		s.sendError(w, http.StatusNotFound, "Message not found")
		return
	}

	raw := string(msg.Data)
	msg.Data = nil
	s.sendJSON(w, http.StatusOK, SandboxMessageResponse{Message: msg, Raw: raw})
}

// handleSandboxClear handles DELETE /api/v1/sandbox/messages?older_than=24h
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid older_than duration")
			return
		}
		olderThan = d
	}

	n, err := s.deps.Sandbox.Clear(r.Context(), olderThan)
	if err != nil {
		s.logger.Error("failed to clear sandbox", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	s.logger.Info("sandbox cleared", "deleted", n)
	s.sendJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// handleSandboxStats handles GET /api/v1/sandbox/stats
func (s *Server) handleSandboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Sandbox.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get sandbox stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}
