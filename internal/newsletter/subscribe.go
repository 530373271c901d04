package newsletter

import (
	"context"
	"fmt"

	"github.com/foxzi/newsflash/internal/email"
	"github.com/foxzi/newsflash/internal/models"
)

// Outcome of a subscribe call
type Outcome string

const (
	OutcomeSubscribed        Outcome = "subscribed"
	OutcomeReactivated       Outcome = "reactivated"
	OutcomeAlreadySubscribed Outcome = "already_subscribed"
	OutcomeFailed            Outcome = "failed"
)

var outcomeMessages = map[Outcome]string{
	OutcomeSubscribed:        "Successfully subscribed",
	OutcomeReactivated:       "Subscription reactivated",
	OutcomeAlreadySubscribed: "Email already subscribed",
	OutcomeFailed:            "Failed to subscribe",
}

// SubscribeResult is the outcome of Subscribe. Welcome reports whether the
// welcome email was delivered; it does not affect the outcome.
type SubscribeResult struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
	Welcome bool    `json:"welcome_sent"`
}

// Success is true when the address ends up newly active
func (r SubscribeResult) Success() bool {
	return r.Outcome == OutcomeSubscribed || r.Outcome == OutcomeReactivated
}

func subscribeResult(o Outcome) SubscribeResult {
	return SubscribeResult{Outcome: o, Message: outcomeMessages[o]}
}

// Subscribe creates or reactivates a subscription for the address and sends
// the welcome email. A failed welcome never undoes the subscription, and a
// cancelled ctx does not interrupt the workflow once it has begun.
func (d *Dispatcher) Subscribe(ctx context.Context, addr string) SubscribeResult {
	ctx = context.WithoutCancel(ctx)
	addr = email.Normalize(addr)
	logger := d.logger.With("email", addr)

	result, err := d.subscribe(ctx, addr)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		result = subscribeResult(OutcomeFailed)
	}

	if result.Success() {
		result.Welcome = d.SendWelcome(ctx, addr)
		logger.Info("subscription stored", "outcome", result.Outcome, "welcome_sent", result.Welcome)
	}

	if d.observer != nil {
		d.observer.SubscribeCompleted(string(result.Outcome))
	}
	return result
}

func (d *Dispatcher) subscribe(ctx context.Context, addr string) (SubscribeResult, error) {
	existing, err := d.subscribers.GetByEmail(ctx, addr)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("lookup: %w", err)
	}

	if existing != nil {
		if existing.Active {
			return subscribeResult(OutcomeAlreadySubscribed), nil
		}
		if err := d.subscribers.Reactivate(ctx, existing.ID, d.now()); err != nil {
			return SubscribeResult{}, fmt.Errorf("reactivate: %w", err)
		}
		return subscribeResult(OutcomeReactivated), nil
	}

	token, err := GenerateToken()
	if err != nil {
		return SubscribeResult{}, err
	}
	sub := &models.Subscriber{
		Email:        addr,
		Active:       true,
		Token:        token,
		SubscribedAt: d.now(),
	}
	if err := d.subscribers.Create(ctx, sub); err != nil {
		return SubscribeResult{}, fmt.Errorf("create: %w", err)
	}
	return subscribeResult(OutcomeSubscribed), nil
}

// UnsubscribeOutcome of an unsubscribe call
type UnsubscribeOutcome string

const (
	UnsubscribeDone     UnsubscribeOutcome = "unsubscribed"
	UnsubscribeInactive UnsubscribeOutcome = "already_unsubscribed"
	UnsubscribeNotFound UnsubscribeOutcome = "not_found"
	UnsubscribeFailed   UnsubscribeOutcome = "failed"
)

type UnsubscribeResult struct {
	Outcome UnsubscribeOutcome `json:"outcome"`
	Message string             `json:"message"`
}

// Unsubscribe deactivates the subscriber owning the token. The record is kept
// so the address can be reactivated by subscribing again.
func (d *Dispatcher) Unsubscribe(ctx context.Context, token string) UnsubscribeResult {
	if token == "" {
		return UnsubscribeResult{Outcome: UnsubscribeNotFound, Message: "Unknown subscription token"}
	}

	sub, err := d.subscribers.GetByToken(ctx, token)
	if err != nil {
		d.logger.Error("failed to look up subscription token", "error", err)
		return UnsubscribeResult{Outcome: UnsubscribeFailed, Message: "Failed to unsubscribe"}
	}
	if sub == nil {
		return UnsubscribeResult{Outcome: UnsubscribeNotFound, Message: "Unknown subscription token"}
	}
	if !sub.Active {
		return UnsubscribeResult{Outcome: UnsubscribeInactive, Message: "Email already unsubscribed"}
	}

	if err := d.subscribers.Deactivate(ctx, sub.ID); err != nil {
		d.logger.Error("failed to unsubscribe", "email", sub.Email, "error", err)
		return UnsubscribeResult{Outcome: UnsubscribeFailed, Message: "Failed to unsubscribe"}
	}

	d.logger.Info("unsubscribed", "email", sub.Email)
	return UnsubscribeResult{Outcome: UnsubscribeDone, Message: "Successfully unsubscribed"}
}
