package models

import "time"

// Subscriber is a standing opt-in to receive the newsletter
type Subscriber struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Active       bool       `json:"active"`
	Token        string     `json:"-"`
	SubscribedAt time.Time  `json:"subscribed_at"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	SentCount    int        `json:"sent_count"`
}

// SubscriberFilter for listing subscribers
type SubscriberFilter struct {
	Search string
	Active *bool
	Limit  int
	Offset int
}

// SendRecord is a successful newsletter delivery to be applied to a subscriber
type SendRecord struct {
	Email  string
	SentAt time.Time
}
