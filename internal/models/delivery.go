package models

import "time"

// DeliveryStatus is the state of a delivery attempt
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Terminal reports whether no further transition is allowed
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

// CanTransition reports whether s -> next is a valid delivery transition.
// The only valid transitions are pending -> sent and pending -> failed.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	return s == DeliveryPending && next.Terminal()
}

// Category tags what kind of message a delivery carried
type Category string

const (
	CategoryWelcome    Category = "welcome"
	CategoryNewsletter Category = "newsletter"
	CategoryGeneral    Category = "general"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryWelcome, CategoryNewsletter, CategoryGeneral:
		return true
	}
	return false
}

// DeliveryLogEntry is one attempted send to one recipient.
// RecipientEmail is a copy of the address, not a reference to a subscriber row.
type DeliveryLogEntry struct {
	ID             string         `json:"id"`
	RecipientEmail string         `json:"recipient_email"`
	Subject        string         `json:"subject"`
	Category       Category       `json:"category"`
	Status         DeliveryStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
}

// DeliveryLogFilter for listing delivery log entries
type DeliveryLogFilter struct {
	Recipient string
	Status    DeliveryStatus
	Category  Category
	Limit     int
	Offset    int
}

// DeliveryStats summarizes the delivery log
type DeliveryStats struct {
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
	SentSince int `json:"sent_since"`
}
