// Package app wires storage, mail transport, the newsletter dispatcher and
// the HTTP servers together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/newsflash/internal/api"
	"github.com/foxzi/newsflash/internal/config"
	"github.com/foxzi/newsflash/internal/db"
	"github.com/foxzi/newsflash/internal/dkim"
	"github.com/foxzi/newsflash/internal/mailer"
	"github.com/foxzi/newsflash/internal/metrics"
	"github.com/foxzi/newsflash/internal/newsletter"
	"github.com/foxzi/newsflash/internal/render"
	"github.com/foxzi/newsflash/internal/repository"
	"github.com/foxzi/newsflash/internal/sandbox"
)

// App is the main application
type App struct {
	config  *config.Config
	logger  *slog.Logger
	version string

	db             *db.DB
	sandboxStorage *sandbox.Storage

	subscribers *repository.SubscriberRepository
	logs        *repository.DeliveryLogRepository
	articles    *repository.ArticleRepository

	mailer     *mailer.Mailer
	dispatcher *newsletter.Dispatcher

	metrics       *metrics.Metrics
	collector     *metrics.Collector
	metricsServer *metrics.Server
	apiServer     *api.Server
}

// New creates a new application. Servers are only built by Run.
func New(cfg *config.Config, version string) (*App, error) {
	return NewWithLogger(cfg, version, setupLogger(cfg.Logging, os.Stdout))
}

// NewWithLogger is New with a caller supplied logger
func NewWithLogger(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	database, err := db.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// The bbolt file holds captured sandbox mail and persisted metric counters
	sandboxStorage, err := sandbox.Open(cfg.Storage.SandboxPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open sandbox storage: %w", err)
	}

	a := &App{
		config:         cfg,
		logger:         logger,
		version:        version,
		db:             database,
		sandboxStorage: sandboxStorage,
		subscribers:    repository.NewSubscriberRepository(database.DB),
		logs:           repository.NewDeliveryLogRepository(database.DB),
		articles:       repository.NewArticleRepository(database.DB),
	}

	a.mailer, err = NewMailer(cfg, sandboxStorage, logger.With("component", "mailer"))
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []newsletter.Option{newsletter.WithLogger(logger.With("component", "newsletter"))}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		metrics.SetGlobal(a.metrics)

		a.collector, err = metrics.NewCollector(
			sandboxStorage.DB(),
			a.metrics,
			a.subscribers,
			cfg.Storage.Path,
			0,
			logger.With("component", "metrics"),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		opts = append(opts, newsletter.WithObserver(a.collector))
	}

	renderer := render.New(cfg.Newsletter.SiteName, cfg.Newsletter.SiteURL)
	a.dispatcher = newsletter.NewDispatcher(a.subscribers, a.logs, a.mailer, renderer, opts...)

	return a, nil
}

// NewMailer builds the mailer for the configured mode. In sandbox mode mail
// is captured into storage; otherwise it is submitted to the SMTP relay.
func NewMailer(cfg *config.Config, storage *sandbox.Storage, logger *slog.Logger) (*mailer.Mailer, error) {
	mc := mailer.Config{
		Mode:          cfg.Mail.Mode,
		Host:          cfg.Mail.Host,
		Port:          cfg.Mail.Port,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		From:          cfg.Mail.From,
		FromName:      cfg.Mail.FromName,
		TLSMode:       cfg.Mail.TLSMode,
		TLSSkipVerify: cfg.Mail.TLSSkipVerify,
		Timeout:       cfg.Mail.Timeout,
		HeloName:      cfg.Mail.Helo,
	}

	var transport mailer.Transport
	switch cfg.Mail.Mode {
	case mailer.ModeSandbox:
		if storage == nil {
			return nil, errors.New("sandbox mode requires sandbox storage")
		}
		st := sandbox.NewTransport(storage, logger.With("transport", "sandbox"))
		st.SetFailureRate(cfg.Mail.SandboxFailRate)
		transport = st
		logger.Info("sandbox mode enabled, mail is captured and not delivered",
			"fail_rate", cfg.Mail.SandboxFailRate)
	default:
		transport = mailer.NewSMTPTransport(mc, logger.With("transport", "smtp"))
		if missing := mc.Missing(); len(missing) > 0 {
			logger.Warn("mail credentials incomplete, every send will fail", "missing", missing)
		}
	}

	m := mailer.New(mc, transport, logger)

	if cfg.DKIM.Enabled {
		signer, err := dkim.LoadSigner(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		m.SetSigner(signer)
		logger.Info("DKIM signing enabled", "domain", signer.Domain(), "selector", signer.Selector())
	}

	return m, nil
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger { return a.logger }

// Dispatcher returns the newsletter dispatcher
func (a *App) Dispatcher() *newsletter.Dispatcher { return a.dispatcher }

// Subscribers returns the subscriber repository
func (a *App) Subscribers() *repository.SubscriberRepository { return a.subscribers }

// Logs returns the delivery log repository
func (a *App) Logs() *repository.DeliveryLogRepository { return a.logs }

// Articles returns the article repository
func (a *App) Articles() *repository.ArticleRepository { return a.articles }

// Sandbox returns the captured mail storage
func (a *App) Sandbox() *sandbox.Storage { return a.sandboxStorage }

// Stats collects the newsletter overview
func (a *App) Stats(ctx context.Context) (*newsletter.Stats, error) {
	return newsletter.CollectStats(ctx, newsletter.StatsSources{
		Subscribers: a.subscribers,
		Articles:    a.articles,
		Deliveries:  a.logs,
	}, time.Now())
}

// Run starts the servers and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting newsflash",
		"version", a.version,
		"mail_mode", a.config.Mail.Mode,
		"api_addr", a.config.API.ListenAddr,
		"metrics_enabled", a.config.Metrics.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	if a.config.API.IsEnabled() {
		deps := api.Deps{
			Newsletter:  a.dispatcher,
			Subscribers: a.subscribers,
			Logs:        a.logs,
			Articles:    a.articles,
			DigestSize:  a.config.Newsletter.DigestSize,
			Version:     a.version,
		}
		if a.config.Mail.Mode == mailer.ModeSandbox {
			deps.Sandbox = a.sandboxStorage
		}
		a.apiServer = api.NewServer(deps, &a.config.API, a.logger.With("component", "api"))

		go func() {
			if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	if a.collector != nil {
		a.collector.Start(ctx)

		a.metricsServer = metrics.NewServer(
			a.metrics,
			a.config.Metrics.ListenAddr,
			a.config.Metrics.Path,
			a.config.Metrics.AllowedIPs,
			a.logger.With("component", "metrics"),
		)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
		a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the servers and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("api server shutdown error", "error", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	err := a.Close()
	a.logger.Info("shutdown complete")
	return err
}

// Close persists metric counters and closes storage
func (a *App) Close() error {
	var errs []error

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("metrics collector: %w", err))
		}
		a.collector = nil
	}
	if a.sandboxStorage != nil {
		if err := a.sandboxStorage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sandbox storage: %w", err))
		}
		a.sandboxStorage = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		a.db = nil
	}

	return errors.Join(errs...)
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
