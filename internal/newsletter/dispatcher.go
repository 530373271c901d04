// Package newsletter implements the subscribe, welcome and bulk-send workflows.
package newsletter

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/render"
)

// SubscriberStore is the persistence the dispatcher needs for subscribers
type SubscriberStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	GetByToken(ctx context.Context, token string) (*models.Subscriber, error)
	Create(ctx context.Context, sub *models.Subscriber) error
	Reactivate(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	RecordSends(ctx context.Context, records []models.SendRecord) (int, error)
}

// DeliveryLog records one entry per send attempt
type DeliveryLog interface {
	Create(ctx context.Context, entry *models.DeliveryLogEntry) (string, error)
	Complete(ctx context.Context, id string, status models.DeliveryStatus, detail string) error
}

// Mailer performs a single delivery attempt
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Observer is notified of workflow outcomes. It is used for metrics.
type Observer interface {
	DeliveryCompleted(category models.Category, status models.DeliveryStatus)
	SubscribeCompleted(outcome string)
}

// Dispatcher composes the subscriber store, delivery log and mailer.
// Every call runs to completion synchronously and never panics on a
// collaborator failure; failures are reported in the returned result.
type Dispatcher struct {
	subscribers SubscriberStore
	logs        DeliveryLog
	mailer      Mailer
	renderer    *render.Renderer
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithObserver sets the outcome observer
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(subscribers SubscriberStore, logs DeliveryLog, mailer Mailer, renderer *render.Renderer, opts ...Option) *Dispatcher {
	if renderer == nil {
		renderer = render.New("", "")
	}
	d := &Dispatcher{
		subscribers: subscribers,
		logs:        logs,
		mailer:      mailer,
		renderer:    renderer,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GenerateToken returns a fresh subscription token: 32 random bytes,
// URL-safe base64 without padding.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// deliver performs one logged delivery attempt: a pending log entry is
// written first, then the mailer is called once, then the entry is
// completed as sent or failed. It reports whether the mailer succeeded.
// If the pending entry cannot be written nothing is sent.
func (d *Dispatcher) deliver(ctx context.Context, to, subject, body string, category models.Category) bool {
	entry := &models.DeliveryLogEntry{
		RecipientEmail: to,
		Subject:        subject,
		Category:       category,
		Status:         models.DeliveryPending,
	}
	id, err := d.logs.Create(ctx, entry)
	if err != nil {
		// no attempt without a log entry
		d.logger.Error("failed to create delivery log entry, not sending", "email", to, "category", category, "error", err)
		return false
	}

	sendErr := d.mailer.Send(ctx, to, subject, body)

	status := models.DeliverySent
	detail := ""
	if sendErr != nil {
		status = models.DeliveryFailed
		detail = sendErr.Error()
		d.logger.Warn("delivery failed", "email", to, "category", category, "error", sendErr)
	}

	if err := d.logs.Complete(ctx, id, status, detail); err != nil {
		d.logger.Error("failed to complete delivery log entry", "id", id, "status", status, "error", err)
	}

	if d.observer != nil {
		d.observer.DeliveryCompleted(category, status)
	}
	return sendErr == nil
}

// SendWelcome renders the welcome message and performs one logged delivery
// attempt. Cancelling ctx does not abandon an attempt already started.
func (d *Dispatcher) SendWelcome(ctx context.Context, email string) bool {
	ctx = context.WithoutCancel(ctx)
	msg, err := d.renderer.Welcome()
	if err != nil {
		d.logger.Error("failed to render welcome email", "email", email, "error", err)
		return false
	}
	return d.deliver(ctx, email, msg.Subject, msg.HTML, models.CategoryWelcome)
}
