package newsletter

import (
	"context"
	"fmt"

	"github.com/foxzi/newsflash/internal/email"
	"github.com/foxzi/newsflash/internal/models"
)

const (
	msgNoArticles    = "No articles to send"
	msgNoSubscribers = "No active subscribers"
)

// SendResult summarizes a bulk send
type SendResult struct {
	Sent      int    `json:"sent"`
	Attempted int    `json:"attempted"`
	Failed    int    `json:"failed"`
	Message   string `json:"message"`

	// StatsError is set when subscriber counters could not be committed
	StatsError string `json:"stats_error,omitempty"`
}

// SendNewsletter renders one digest from the articles and sends it to every
// active subscriber, or only to testRecipient when it is non-empty. Each
// recipient gets exactly one logged attempt; failures never stop the loop.
// In test mode no subscriber record is modified. A blank testRecipient means
// a normal send. Once started the batch runs to completion even if ctx is
// cancelled, so every attempt is logged and counted.
func (d *Dispatcher) SendNewsletter(ctx context.Context, articles []models.Article, testRecipient string) SendResult {
	if len(articles) == 0 {
		return SendResult{Message: msgNoArticles}
	}
	ctx = context.WithoutCancel(ctx)

	testRecipient = email.Normalize(testRecipient)
	testMode := testRecipient != ""
	recipients, err := d.recipients(ctx, testRecipient)
	if err != nil {
		d.logger.Error("failed to load recipients", "error", err)
		return SendResult{Message: fmt.Sprintf("Failed to load subscribers: %v", err)}
	}
	if len(recipients) == 0 {
		return SendResult{Message: msgNoSubscribers}
	}

	digest, err := d.renderer.Digest(articles)
	if err != nil {
		d.logger.Error("failed to render newsletter", "error", err)
		return SendResult{Message: fmt.Sprintf("Failed to render newsletter: %v", err)}
	}

	logger := d.logger.With("subject", digest.Subject, "test_mode", testMode)
	logger.Info("sending newsletter", "recipients", len(recipients), "articles", len(articles))

	result := SendResult{}
	var records []models.SendRecord
	for _, to := range recipients {
		result.Attempted++
		if !d.deliver(ctx, to, digest.Subject, digest.HTML, models.CategoryNewsletter) {
			result.Failed++
			continue
		}
		result.Sent++
		if !testMode {
			records = append(records, models.SendRecord{Email: to, SentAt: d.now()})
		}
	}

	if len(records) > 0 {
		if _, err := d.subscribers.RecordSends(ctx, records); err != nil {
			logger.Error("failed to record subscriber send statistics", "error", err)
			result.StatsError = err.Error()
		}
	}

	result.Message = fmt.Sprintf("Newsletter sent to %d recipients", result.Sent)
	logger.Info("newsletter finished", "sent", result.Sent, "failed", result.Failed)
	return result
}

func (d *Dispatcher) recipients(ctx context.Context, testRecipient string) ([]string, error) {
	if testRecipient != "" {
		return []string{testRecipient}, nil
	}

	subs, err := d.subscribers.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Email)
	}
	return out, nil
}
