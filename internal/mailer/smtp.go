package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

// SMTPTransport submits messages to a relay with SMTP AUTH
type SMTPTransport struct {
	addr      string
	host      string
	username  string
	password  string
	tlsMode   string
	tlsConfig *tls.Config
	timeout   time.Duration
	helo      string
	logger    *slog.Logger
}

func NewSMTPTransport(cfg Config, logger *slog.Logger) *SMTPTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	tlsMode := cfg.TLSMode
	if tlsMode == "" {
		tlsMode = TLSModeStartTLS
	}
	helo := cfg.HeloName
	if helo == "" {
		helo = "localhost"
	}

	return &SMTPTransport{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		tlsMode:  tlsMode,
		tlsConfig: &tls.Config{
			ServerName:         cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		timeout: timeout,
		helo:    helo,
		logger:  logger,
	}
}

// Deliver performs one complete SMTP session. The whole exchange is bounded
// by the configured timeout or the context deadline, whichever is earlier.
func (t *SMTPTransport) Deliver(ctx context.Context, from string, to []string, data []byte) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", t.addr, err)
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	c, err := t.newClient(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if t.username != "" {
		auth, err := t.saslClient(c)
		if err != nil {
			return err
		}
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}

	if err := c.Quit(); err != nil {
		t.logger.Debug("QUIT failed after successful DATA", "error", err)
	}

	t.logger.Debug("message submitted", "relay", t.addr, "from", from, "to", to)
	return nil
}

// newClient greets the server and, in starttls mode, upgrades the connection.
// go-smtp runs the pre-TLS EHLO itself with the name "localhost", so the
// configured HELO name only applies to the tls and none modes.
func (t *SMTPTransport) newClient(conn net.Conn) (*smtp.Client, error) {
	if t.tlsMode == TLSModeStartTLS {
		c, err := smtp.NewClientStartTLS(conn, t.tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("STARTTLS with %s failed: %w", t.host, err)
		}
		return c, nil
	}

	c := smtp.NewClient(conn)
	if err := c.Hello(t.helo); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return c, nil
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.timeout}
	if t.tlsMode == TLSModeImplicit {
		td := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}
		return td.DialContext(ctx, "tcp", t.addr)
	}
	return dialer.DialContext(ctx, "tcp", t.addr)
}

// saslClient picks PLAIN, falling back to LOGIN for relays that only offer it
func (t *SMTPTransport) saslClient(c *smtp.Client) (sasl.Client, error) {
	switch {
	case c.SupportsAuth(sasl.Plain):
		return sasl.NewPlainClient("", t.username, t.password), nil
	case c.SupportsAuth(sasl.Login):
		return sasl.NewLoginClient(t.username, t.password), nil
	default:
		return nil, fmt.Errorf("server %s offers neither PLAIN nor LOGIN authentication", t.host)
	}
}
