package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/newsflash/internal/config"
	"github.com/foxzi/newsflash/internal/dkim"
	"github.com/foxzi/newsflash/internal/mailer"
	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/newsletter"
	"github.com/foxzi/newsflash/internal/sandbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Mail: config.MailConfig{
			Mode:    mailer.ModeSandbox,
			From:    "news@flash.test",
			TLSMode: mailer.TLSModeStartTLS,
		},
		Newsletter: config.NewsletterConfig{SiteName: "NewsFlash247", DigestSize: 5},
		Storage: config.StorageConfig{
			Path:        filepath.Join(dir, "newsflash.db"),
			SandboxPath: filepath.Join(dir, "sandbox.db"),
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppSandboxFlow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true

	a, err := NewWithLogger(cfg, "test", discardLogger())
	if err != nil {
		t.Fatalf("NewWithLogger() error = %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	res := a.Dispatcher().Subscribe(ctx, "Reader@Example.com")
	if res.Outcome != newsletter.OutcomeSubscribed || !res.Welcome {
		t.Fatalf("Subscribe() = %+v", res)
	}

	if err := a.Articles().Create(ctx, &models.Article{Title: "Hello", Content: "world", Category: "General", IsPublished: true}); err != nil {
		t.Fatalf("Create article: %v", err)
	}
	articles, err := a.Articles().ListRecentPublished(ctx, cfg.Newsletter.DigestSize)
	if err != nil {
		t.Fatalf("ListRecentPublished() error = %v", err)
	}

	sent := a.Dispatcher().SendNewsletter(ctx, articles, "")
	if sent.Sent != 1 || sent.Failed != 0 {
		t.Fatalf("SendNewsletter() = %+v", sent)
	}

	msgs, err := a.Sandbox().List(ctx, sandbox.ListFilter{Recipient: "reader@example.com"})
	if err != nil {
		t.Fatalf("sandbox List() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("captured %d messages, want welcome + digest", len(msgs))
	}

	stats, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ActiveSubscribers != 1 || stats.PublishedArticles != 1 || stats.EmailsSentToday != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewMailerSMTPUnconfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mail.Mode = mailer.ModeSMTP

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m, err := NewMailer(cfg, nil, logger)
	if err != nil {
		t.Fatalf("NewMailer() error = %v", err)
	}
	if err := m.Configured(); !mailer.IsConfigurationError(err) {
		t.Errorf("Configured() = %v, want configuration error", err)
	}
	if !strings.Contains(buf.String(), "mail credentials incomplete") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestNewMailerSandboxNeedsStorage(t *testing.T) {
	cfg := testConfig(t)
	if _, err := NewMailer(cfg, nil, discardLogger()); err == nil {
		t.Error("NewMailer() should fail without sandbox storage")
	}
}

func TestNewMailerDKIM(t *testing.T) {
	cfg := testConfig(t)
	keyFile := filepath.Join(t.TempDir(), "dkim.pem")

	key, err := dkim.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := dkim.SavePrivateKey(key, keyFile); err != nil {
		t.Fatal(err)
	}

	cfg.DKIM = config.DKIMConfig{Enabled: true, Domain: "flash.test", Selector: "newsflash", KeyFile: keyFile}
	cfg.Mail.Mode = mailer.ModeSMTP
	if _, err := NewMailer(cfg, nil, discardLogger()); err != nil {
		t.Errorf("NewMailer() error = %v", err)
	}

	cfg.DKIM.KeyFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := NewMailer(cfg, nil, discardLogger()); err == nil {
		t.Error("NewMailer() should fail with a missing DKIM key")
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}
