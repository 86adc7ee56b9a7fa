package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository"
	"github.com/andy/billsink/internal/repository/memory"
)

const owner int64 = 1

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []notifier.Message
	failTo map[string]bool
}

func (n *fakeNotifier) Send(ctx context.Context, msg notifier.Message) (notifier.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failTo[msg.To] {
		err := errors.New("mailbox unavailable")
		return notifier.Result{Error: err.Error()}, err
	}
	n.sent = append(n.sent, msg)
	return notifier.Result{Success: true, ID: "em_" + msg.IdempotencyKey}, nil
}

// reminders returns the messages that were not invoice emails
func (n *fakeNotifier) reminders() []notifier.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifier.Message, 0)
	for _, m := range n.sent {
		if m.Tags["template"] != notifier.TemplateInvoiceSent {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	now      time.Time
	notifier *fakeNotifier
	events   *recordingPublisher
	settings Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		now:      baseTime,
		notifier: &fakeNotifier{failTo: map[string]bool{}},
		events:   &recordingPublisher{},
		settings: DefaultSettings(),
	}
	f.settings.SenderName = "Andy"
	return f
}

func (f *fixture) deps() Deps {
	renderer, err := notifier.NewRenderer()
	require.NoError(f.t, err)
	return Deps{
		Store:    f.store,
		Settings: f.settings,
		Clock:    func() time.Time { return f.now },
		Logger:   zerolog.Nop(),
		Events:   f.events,
		Notifier: f.notifier,
		Renderer: renderer,
	}
}

func (f *fixture) invoices() InvoiceService { return NewInvoiceService(f.deps()) }
func (f *fixture) converter() ConverterService { return NewConverterService(f.deps()) }
func (f *fixture) payments() PaymentService { return NewPaymentService(f.deps()) }
func (f *fixture) scheduler() ReminderScheduler { return NewReminderScheduler(f.deps()) }
func (f *fixture) dispatcher() ReminderDispatcher { return NewReminderDispatcher(f.deps()) }
func (f *fixture) timer() TimerService { return NewTimerService(f.deps()) }
func (f *fixture) entryService() EntryService { return NewEntryService(f.deps()) }
func (f *fixture) reports() ReportService { return NewReportService(f.deps()) }

func cents(v int64) *int64 { return &v }

func (f *fixture) client(userID int64, name, email string, rate *int64) *domain.Client {
	f.t.Helper()
	c := domain.NewClient(userID, name, rate)
	c.Email = email
	require.NoError(f.t, f.store.Clients().Create(f.ctx, c))
	return c
}

func (f *fixture) project(clientID int64, name string, rate *int64) *domain.Project {
	f.t.Helper()
	p := domain.NewProject(owner, clientID, name, rate)
	require.NoError(f.t, f.store.Projects().Create(f.ctx, p))
	return p
}

// entry stores a finished entry of the given length
func (f *fixture) entry(userID, clientID int64, projectID *int64, minutes int64, rate *int64) *domain.TimeEntry {
	f.t.Helper()
	e := domain.NewTimeEntry(userID, clientID, projectID, "work", f.now.Add(-48*time.Hour))
	e.HourlyRate = rate
	e.Stop(e.StartTime.Add(time.Duration(minutes) * time.Minute))
	require.NoError(f.t, f.store.Entries().Create(f.ctx, e))
	return e
}

// draft creates a one-line draft for total cents due at due
func (f *fixture) draft(clientID, total int64, due time.Time) *domain.Invoice {
	f.t.Helper()
	issue := f.now
	if due.Before(issue) {
		issue = due.AddDate(0, 0, -30)
	}
	inv, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{
		ClientID:  clientID,
		IssueDate: &issue,
		DueDate:   &due,
		Items:     []ItemInput{{Description: "Consulting", Quantity: decimal.NewFromInt(1), UnitPrice: total}},
	})
	require.NoError(f.t, err)
	return inv
}

// sent creates and sends a one-line invoice
func (f *fixture) sent(clientID, total int64, due time.Time) *domain.Invoice {
	f.t.Helper()
	inv := f.draft(clientID, total, due)
	inv, err := f.invoices().Send(f.ctx, owner, inv.ID)
	require.NoError(f.t, err)
	return inv
}

func (f *fixture) stored(id int64) *domain.Invoice {
	f.t.Helper()
	inv, err := f.store.Invoices().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return inv
}

func (f *fixture) remindersWith(invoiceID int64, status domain.ReminderStatus) []*domain.ReminderSchedule {
	f.t.Helper()
	all, err := f.store.Reminders().ListByInvoice(f.ctx, invoiceID)
	require.NoError(f.t, err)
	out := make([]*domain.ReminderSchedule, 0)
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func requireTotalsInvariant(t *testing.T, inv *domain.Invoice) {
	t.Helper()
	require.Equal(t, inv.Subtotal+inv.TaxAmount-inv.DiscountAmount, inv.Total)
	require.GreaterOrEqual(t, inv.Total, int64(0))
	require.LessOrEqual(t, inv.AmountPaid, inv.Total)
	require.Equal(t, max(int64(0), inv.Total-inv.AmountPaid), inv.BalanceDue())
}

// conflictStore fails the next n invoice updates with a concurrency error
type conflictStore struct {
	repository.Store
	remaining *int
}

func (c conflictStore) Invoices() repository.InvoiceRepository {
	return conflictInvoices{InvoiceRepository: c.Store.Invoices(), remaining: c.remaining}
}

func (c conflictStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return c.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(conflictStore{Store: tx, remaining: c.remaining})
	})
}

type conflictInvoices struct {
	repository.InvoiceRepository
	remaining *int
}

func (c conflictInvoices) Update(ctx context.Context, inv *domain.Invoice) error {
	if *c.remaining > 0 {
		*c.remaining--
		return domain.Concurrency("update invoice", errors.New("stale version"))
	}
	return c.InvoiceRepository.Update(ctx, inv)
}
