package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
)

// simulatedErrors are the replies used when failure simulation is on
var simulatedErrors = []string{
	"550 5.1.1 User not found",
	"451 4.3.0 Temporary failure",
	"452 4.2.2 Mailbox full",
	"421 4.3.2 Service not available",
}

// SimulatedError is returned for a capture that was set up to fail
type SimulatedError struct {
	Message string
}

func (e *SimulatedError) Error() string {
	return e.Message
}

// Transport delivers into the sandbox store. It never touches the network.
type Transport struct {
	storage *Storage
	logger  *slog.Logger

	mu       sync.Mutex // guards failRate and rng
	failRate float64
	rng      *rand.Rand
}

func NewTransport(storage *Storage, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		storage: storage,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFailureRate makes a share of deliveries (0..1) fail with a simulated SMTP reply.
// Failed deliveries are still captured.
func (t *Transport) SetFailureRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	t.mu.Lock()
	t.failRate = rate
	t.mu.Unlock()
}

// Deliver captures the message
func (t *Transport) Deliver(ctx context.Context, from string, to []string, data []byte) error {
	msg := &Message{
		ID:         uuid.New().String(),
		From:       from,
		To:         to,
		Subject:    extractSubject(data),
		Data:       data,
		CapturedAt: time.Now(),
	}

	msg.SimulatedErr = t.pickFailure()

	if err := t.storage.Save(ctx, msg); err != nil {
		return fmt.Errorf("sandbox: failed to save message: %w", err)
	}

	if msg.SimulatedErr != "" {
		t.logger.Info("sandbox: simulated failure", "id", msg.ID, "to", to, "error", msg.SimulatedErr)
		return &SimulatedError{Message: msg.SimulatedErr}
	}

	t.logger.Info("sandbox: message captured", "id", msg.ID, "from", from, "to", to)
	return nil
}

// pickFailure returns a simulated SMTP reply, or "" when the delivery succeeds
func (t *Transport) pickFailure() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failRate <= 0 || t.rng.Float64() >= t.failRate {
		return ""
	}
	return simulatedErrors[t.rng.Intn(len(simulatedErrors))]
}

// extractSubject returns the decoded Subject header of a raw message
func extractSubject(data []byte) string {
	m, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	subject := m.Header.Get("Subject")
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(subject); err == nil {
		return decoded
	}
	return subject
}
