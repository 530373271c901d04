// Package mailer turns a rendered newsletter into one delivery attempt over a transport.
package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/newsflash/internal/dkim"
)

const (
	ModeSMTP    = "smtp"
	ModeSandbox = "sandbox"
)

// Transport moves a finished message to its recipients
type Transport interface {
	Deliver(ctx context.Context, from string, to []string, data []byte) error
}

// Config holds the outbound mail settings
type Config struct {
	Mode     string
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// TLSMode is starttls, tls or none
	TLSMode       string
	TLSSkipVerify bool
	Timeout       time.Duration
	HeloName      string // unused in starttls mode
}

// Missing lists the settings that must be present before anything is sent
func (c Config) Missing() []string {
	if c.Mode == ModeSandbox {
		return nil
	}

	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port <= 0 {
		missing = append(missing, "port")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.From == "" {
		missing = append(missing, "default sender")
	}
	return missing
}

// Mailer sends single-recipient HTML messages. It never persists anything
// and never retries: each Send is at most one transport attempt.
type Mailer struct {
	cfg       Config
	transport Transport
	signer    *dkim.Signer
	logger    *slog.Logger
}

func New(cfg Config, transport Transport, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mailer{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
}

// SetSigner enables DKIM signing of outgoing messages
func (m *Mailer) SetSigner(s *dkim.Signer) {
	m.signer = s
}

// Configured returns a configuration error if a send would fail its precondition
func (m *Mailer) Configured() error {
	if missing := m.cfg.Missing(); len(missing) > 0 {
		return &Error{
			Kind:    KindConfiguration,
			Message: "Email credentials not configured (missing " + strings.Join(missing, ", ") + ")",
		}
	}
	if m.transport == nil {
		return &Error{Kind: KindConfiguration, Message: "Email transport not configured"}
	}
	return nil
}

// Send delivers one message to one recipient. A nil return means the
// transport accepted the message; otherwise the error is a *Error.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := m.Configured(); err != nil {
		m.logger.Warn("email not sent, mailer not configured", "to", to, "error", err)
		return err
	}

	from := m.cfg.From
	if from == "" {
		from = "newsletter@localhost"
	}

	msg := &Message{
		From:     from,
		FromName: m.cfg.FromName,
		To:       to,
		Subject:  subject,
		HTML:     htmlBody,
	}
	data, err := msg.Bytes()
	if err != nil {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to build message: %v", err), Err: err}
	}

	if m.signer != nil {
		signed, err := m.signer.Sign(data)
		if err != nil {
			m.logger.Warn("DKIM signing failed, sending unsigned", "domain", m.signer.Domain(), "error", err)
		} else {
			data = signed
		}
	}

	start := time.Now()
	if err := m.transport.Deliver(ctx, from, []string{to}, data); err != nil {
		m.logger.Error("failed to send email", "to", to, "error", err)
		return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	m.logger.Info("email sent", "to", to, "subject", subject, "duration", time.Since(start))
	return nil
}
