// Package api exposes the newsletter workflows and read views over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/newsflash/internal/config"
	"github.com/foxzi/newsflash/internal/ipfilter"
	"github.com/foxzi/newsflash/internal/metrics"
	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/newsletter"
	"github.com/foxzi/newsflash/internal/sandbox"
)

// Newsletter is the workflow surface the API drives
type Newsletter interface {
	Subscribe(ctx context.Context, email string) newsletter.SubscribeResult
	Unsubscribe(ctx context.Context, token string) newsletter.UnsubscribeResult
	SendNewsletter(ctx context.Context, articles []models.Article, testRecipient string) newsletter.SendResult
}

// SubscriberReader lists subscribers
type SubscriberReader interface {
	List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error)
	CountActive(ctx context.Context) (int, error)
}

// DeliveryLogReader lists delivery log entries
type DeliveryLogReader interface {
	List(ctx context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLogEntry, int, error)
	Stats(ctx context.Context, since time.Time) (*models.DeliveryStats, error)
}

// ArticleReader picks digest content
type ArticleReader interface {
	ListRecentPublished(ctx context.Context, limit int) ([]models.Article, error)
	CountPublished(ctx context.Context) (int, error)
}

// Deps are the collaborators of the API server. Sandbox may be nil.
type Deps struct {
	Newsletter  Newsletter
	Subscribers SubscriberReader
	Logs        DeliveryLogReader
	Articles    ArticleReader
	Sandbox     *sandbox.Storage
	DigestSize  int
	Version     string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.APIConfig
	filter     *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	if deps.DigestSize <= 0 {
		deps.DigestSize = 5
	}
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		filter:    ipfilter.New(cfg.AllowedIPs, logger),
		logger:    logger,
		startTime: time.Now(),
	}

	if cfg.APIKey == "" && cfg.APIKeyHash == "" {
		logger.Warn("API key not configured, management endpoints are unauthenticated")
	}
	if s.filter.Enabled() {
		logger.Info("API IP filtering enabled", "allowed_networks", s.filter.Count())
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public, like the signup form and the unsubscribe link
		r.Post("/subscribe", s.handleSubscribe)
		r.Get("/unsubscribe/{token}", s.handleUnsubscribe)

		r.Group(func(r chi.Router) {
			r.Use(s.filter.HTTPMiddleware)
			r.Use(s.authMiddleware)

			r.Post("/newsletter/send", s.handleSendNewsletter)
			r.Get("/newsletter/stats", s.handleStats)
			r.Get("/subscribers", s.handleSubscribers)
			r.Get("/logs", s.handleLogs)

			if s.deps.Sandbox != nil {
				r.Route("/sandbox", func(r chi.Router) {
					r.Get("/messages", s.handleSandboxList)
					r.Get("/messages/{id}", s.handleSandboxGet)
					r.Delete("/messages", s.handleSandboxClear)
					r.Get("/stats", s.handleSandboxStats)
				})
			}
		})
	})
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
