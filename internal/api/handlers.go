package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/newsflash/internal/email"
	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/newsletter"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
	maxDigestSize   = 50
)

// SubscribeRequest is the request body for POST /subscribe
type SubscribeRequest struct {
	Email string `json:"email"`
}

// SubscribeResponse is the response for POST /subscribe
type SubscribeResponse struct {
	Success     bool               `json:"success"`
	Outcome     newsletter.Outcome `json:"outcome"`
	Message     string             `json:"message"`
	WelcomeSent bool               `json:"welcome_sent"`
}

// ArticleInput is an article supplied inline to POST /newsletter/send
type ArticleInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Summary    string `json:"summary,omitempty"`
	Category   string `json:"category,omitempty"`
	IsBreaking bool   `json:"is_breaking,omitempty"`
}

// SendNewsletterRequest is the request body for POST /newsletter/send
type SendNewsletterRequest struct {
	TestEmail string         `json:"test_email,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Articles  []ArticleInput `json:"articles,omitempty"`
}

// SubscribersResponse is the response for GET /subscribers
type SubscribersResponse struct {
	Subscribers []models.Subscriber `json:"subscribers"`
	Total       int                 `json:"total"`
}

// LogsResponse is the response for GET /logs
type LogsResponse struct {
	Logs  []models.DeliveryLogEntry `json:"logs"`
	Total int                       `json:"total"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleSubscribe handles POST /api/v1/subscribe
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	addr, err := email.Validate(req.Email)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	res := s.deps.Newsletter.Subscribe(r.Context(), addr)
	s.sendJSON(w, http.StatusOK, SubscribeResponse{
		Success:     res.Success(),
		Outcome:     res.Outcome,
		Message:     res.Message,
		WelcomeSent: res.Welcome,
	})
}

// handleUnsubscribe handles GET /api/v1/unsubscribe/{token}
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	res := s.deps.Newsletter.Unsubscribe(r.Context(), token)

	status := http.StatusOK
	if res.Outcome == newsletter.UnsubscribeFailed {
		status = http.StatusInternalServerError
	}
	s.sendJSON(w, status, res)
}

// handleSendNewsletter handles POST /api/v1/newsletter/send
func (s *Server) handleSendNewsletter(w http.ResponseWriter, r *http.Request) {
	var req SendNewsletterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 10<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	testEmail := ""
	if req.TestEmail != "" {
		addr, err := email.Validate(req.TestEmail)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid test_email")
			return
		}
		testEmail = addr
	}

	var articles []models.Article
	if len(req.Articles) > 0 {
		now := time.Now().UTC()
		for _, a := range req.Articles {
			if strings.TrimSpace(a.Title) == "" {
				s.sendError(w, http.StatusBadRequest, "Every article needs a title")
				return
			}
			category := a.Category
			if category == "" {
				category = "General"
			}
			articles = append(articles, models.Article{
				Title:       a.Title,
				Content:     a.Content,
				Summary:     a.Summary,
				Category:    category,
				IsBreaking:  a.IsBreaking,
				IsPublished: true,
				CreatedAt:   now,
			})
		}
	} else {
		limit := req.Limit
		if limit <= 0 {
			limit = s.deps.DigestSize
		}
		if limit > maxDigestSize {
			limit = maxDigestSize
		}

		var err error
		articles, err = s.deps.Articles.ListRecentPublished(r.Context(), limit)
		if err != nil {
			s.logger.Error("failed to load articles", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to load articles")
			return
		}
	}

	res := s.deps.Newsletter.SendNewsletter(r.Context(), articles, testEmail)
	s.sendJSON(w, http.StatusOK, res)
}

// handleStats handles GET /api/v1/newsletter/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := newsletter.CollectStats(r.Context(), newsletter.StatsSources{
		Subscribers: s.deps.Subscribers,
		Articles:    s.deps.Articles,
		Deliveries:  s.deps.Logs,
	}, time.Now())
	if err != nil {
		s.logger.Error("failed to collect stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// handleSubscribers handles GET /api/v1/subscribers
func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	filter := models.SubscriberFilter{
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid active filter")
			return
		}
		filter.Active = &active
	}

	subs, total, err := s.deps.Subscribers.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list subscribers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list subscribers")
		return
	}
	if subs == nil {
		subs = []models.Subscriber{}
	}
	s.sendJSON(w, http.StatusOK, SubscribersResponse{Subscribers: subs, Total: total})
}

// handleLogs handles GET /api/v1/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	filter := models.DeliveryLogFilter{
		Recipient: email.Normalize(q.Get("recipient")),
		Status:    models.DeliveryStatus(q.Get("status")),
		Category:  models.Category(q.Get("category")),
		Limit:     limit,
		Offset:    offset,
	}
	if filter.Status != "" && filter.Status != models.DeliveryPending && !filter.Status.Terminal() {
		s.sendError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}
	if filter.Category != "" && !filter.Category.Valid() {
		s.sendError(w, http.StatusBadRequest, "Invalid category filter")
		return
	}

	entries, total, err := s.deps.Logs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list delivery logs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	if entries == nil {
		entries = []models.DeliveryLogEntry{}
	}
	s.sendJSON(w, http.StatusOK, LogsResponse{Logs: entries, Total: total})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func pagination(limitStr, offsetStr string) (int, int) {
	limit := defaultPageSize
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
		limit = l
		if limit > maxPageSize {
			limit = maxPageSize // Prevent DoS via excessive limit
		}
	}
	offset := 0
	if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
		offset = o
	}
	return limit, offset
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
