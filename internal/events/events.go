// Package events publishes billing domain events after their transaction
// commits. Delivery is best effort; a lost event never affects billing state.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys
const (
	InvoiceCreated       = "invoice.created"
	InvoiceSent          = "invoice.sent"
	InvoiceStatusChanged = "invoice.status_changed"
	InvoicePaid          = "invoice.paid"
	InvoiceDeleted       = "invoice.deleted"
	PaymentRecorded      = "payment.recorded"
	ReminderSent         = "reminder.sent"
	ReminderFailed       = "reminder.failed"
)

// Envelope wraps every published payload
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// NewEnvelope stamps a payload with an id and time
func NewEnvelope(routingKey string, data any, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

// Publisher sends events to a broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, routingKey string, payload any) error { return nil }
func (NoopPublisher) Close() error                                                   { return nil }
