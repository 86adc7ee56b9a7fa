package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/metrics"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository"
)

// Overpayment policies
const (
	OverpaymentReject = "reject"
	OverpaymentCap    = "cap"
)

// Settings carries the billing policy knobs shared by all services
type Settings struct {
	NumberPrefix            string
	DefaultDueDays          int
	DefaultTaxRate          decimal.Decimal
	AllowReactivation       bool
	AllowDeleteWithPayments bool
	Overpayment             string

	RemindersEnabled bool
	Cadence          []domain.CadenceStep
	SendHour         int
	CatchUpOverdue   bool

	RetryAttempts int
	BatchSize     int
	Lease         time.Duration

	SenderName  string
	SenderEmail string
	ReplyTo     string
}

// DefaultSettings mirrors the config defaults
func DefaultSettings() Settings {
	return Settings{
		NumberPrefix:      "INV",
		DefaultDueDays:    30,
		DefaultTaxRate:    decimal.Zero,
		AllowReactivation: true,
		Overpayment:       OverpaymentReject,
		RemindersEnabled:  true,
		Cadence:           domain.DefaultCadence(),
		SendHour:          9,
		CatchUpOverdue:    true,
		RetryAttempts:     3,
		BatchSize:         50,
		Lease:             5 * time.Minute,
	}
}

// Deps are the collaborators every service is built from. Only Store is
// required.
type Deps struct {
	Store    repository.Store
	Settings Settings
	Clock    func() time.Time
	Logger   zerolog.Logger
	Events   events.Publisher
	Metrics  *metrics.Collector
	Notifier notifier.Notifier
	Renderer *notifier.Renderer
}

type base struct {
	Deps
}

func newBase(d Deps) base {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Events == nil {
		d.Events = events.NoopPublisher{}
	}
	if d.Settings.RetryAttempts < 1 {
		d.Settings.RetryAttempts = 1
	}
	if d.Settings.BatchSize < 1 {
		d.Settings.BatchSize = 1
	}
	if len(d.Settings.Cadence) == 0 {
		d.Settings.Cadence = domain.DefaultCadence()
	}
	if d.Settings.NumberPrefix == "" {
		d.Settings.NumberPrefix = "INV"
	}
	return base{Deps: d}
}

func (b base) now() time.Time {
	return b.Clock().UTC()
}

// retry reruns fn while it fails with a concurrency conflict, up to the
// configured number of attempts.
func (b base) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= b.Settings.RetryAttempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, domain.ErrConcurrency) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.Metrics.Retried(op)
		b.Logger.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("retrying after concurrency conflict")
	}
	return err
}

// publish sends an event after commit; failures are only logged.
func (b base) publish(ctx context.Context, routingKey string, payload any) {
	if err := b.Events.Publish(ctx, routingKey, payload); err != nil {
		b.Logger.Warn().Err(err).Str("event", routingKey).Msg("failed to publish event")
	}
}

// ownedInvoice loads an invoice and hides other owners' invoices as missing
func ownedInvoice(ctx context.Context, store repository.Store, owner, id int64) (*domain.Invoice, error) {
	inv, err := store.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.UserID != owner {
		return nil, domain.NotFound("invoice", id)
	}
	return inv, nil
}

func ownedClient(ctx context.Context, store repository.Store, owner, id int64) (*domain.Client, error) {
	client, err := store.Clients().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if client.UserID != owner {
		return nil, domain.NotFound("client", id)
	}
	return client, nil
}

// InvoiceEvent is the payload of invoice.* events
type InvoiceEvent struct {
	InvoiceID     int64  `json:"invoice_id"`
	UserID        int64  `json:"user_id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	Total         int64  `json:"total"`
	AmountPaid    int64  `json:"amount_paid"`
}

func invoiceEvent(inv *domain.Invoice) InvoiceEvent {
	return InvoiceEvent{
		InvoiceID:     inv.ID,
		UserID:        inv.UserID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        string(inv.Status),
		Total:         inv.Total,
		AmountPaid:    inv.AmountPaid,
	}
}
