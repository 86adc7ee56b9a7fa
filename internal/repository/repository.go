package repository

import (
	"context"
	"time"

	"github.com/andy/billsink/internal/domain"
)

// Store groups the repositories that share a unit of work. WithTx runs fn
// against a Store bound to one transaction; fn's error rolls everything back.
type Store interface {
	Clients() ClientRepository
	Projects() ProjectRepository
	Milestones() MilestoneRepository
	Entries() TimeEntryRepository
	Invoices() InvoiceRepository
	Payments() PaymentRepository
	Reminders() ReminderRepository

	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// ClientRepository manages client persistence
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	GetByName(ctx context.Context, userID int64, name string) (*domain.Client, error)
	List(ctx context.Context, userID int64, includeArchived bool) ([]*domain.Client, error)
	Update(ctx context.Context, client *domain.Client) error
	Archive(ctx context.Context, id int64) error
	Unarchive(ctx context.Context, id int64) error
}

// ProjectRepository manages project persistence
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	List(ctx context.Context, userID int64, clientID *int64, includeArchived bool) ([]*domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
}

// MilestoneRepository manages fixed-price milestones
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *domain.Milestone) error
	GetByID(ctx context.Context, id int64) (*domain.Milestone, error)
	List(ctx context.Context, userID int64, projectID *int64) ([]*domain.Milestone, error)
	Update(ctx context.Context, milestone *domain.Milestone) error
	// MarkInvoiced fails with a concurrency error if any milestone is no
	// longer completed and uninvoiced.
	MarkInvoiced(ctx context.Context, ids []int64, invoiceID int64) error
	ReleaseInvoice(ctx context.Context, invoiceID int64) error
}

// EntryFilter narrows TimeEntryRepository.List
type EntryFilter struct {
	UserID       int64
	ClientID     *int64
	ProjectID    *int64
	Start        *time.Time
	End          *time.Time
	UnbilledOnly bool
}

// TimeEntryRepository manages time entry persistence with audit trail
type TimeEntryRepository interface {
	Create(ctx context.Context, entry *domain.TimeEntry) error
	GetByID(ctx context.Context, id int64) (*domain.TimeEntry, error)
	Update(ctx context.Context, entry *domain.TimeEntry, reason string) error // Creates audit record
	SoftDelete(ctx context.Context, id int64, reason string) error
	List(ctx context.Context, filter EntryFilter) ([]*domain.TimeEntry, error)
	GetRunning(ctx context.Context, userID int64) (*domain.TimeEntry, error) // nil if none
	// MarkBilled fails with a concurrency error if any entry was billed,
	// deleted or restarted since it was read.
	MarkBilled(ctx context.Context, ids []int64, invoiceID int64) error
	ReleaseInvoice(ctx context.Context, invoiceID int64) error
	GetHistory(ctx context.Context, entryID int64) ([]*domain.EntryHistory, error)
}

// InvoiceFilter narrows InvoiceRepository.List
type InvoiceFilter struct {
	UserID   int64
	ClientID *int64
	Status   *domain.InvoiceStatus
}

// InvoiceRepository manages invoice persistence
type InvoiceRepository interface {
	// Create inserts the invoice and its items.
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id int64) (*domain.Invoice, error)
	GetByNumber(ctx context.Context, userID int64, number string) (*domain.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]*domain.Invoice, error)
	// Update writes the invoice row if its version still matches and bumps
	// the version; a mismatch is a concurrency error.
	Update(ctx context.Context, invoice *domain.Invoice) error
	ReplaceItems(ctx context.Context, invoiceID int64, items []*domain.InvoiceItem) error
	Delete(ctx context.Context, id int64) error
	// NextSequence increments and returns the owner's counter for year.
	NextSequence(ctx context.Context, userID int64, year int) (int64, error)
	// ListPastDue returns sent or viewed invoices due before cutoff.
	ListPastDue(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error)
}

// PaymentRepository is append-only
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.Payment, error)
	CountByInvoice(ctx context.Context, invoiceID int64) (int, error)
}

// ReminderRepository is the persisted reminder queue
type ReminderRepository interface {
	Create(ctx context.Context, reminder *domain.ReminderSchedule) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.ReminderSchedule, error)
	// CancelScheduled cancels every scheduled reminder of an invoice.
	CancelScheduled(ctx context.Context, invoiceID int64, at time.Time) (int64, error)
	Cancel(ctx context.Context, id int64, at time.Time) error
	// ListDue returns scheduled reminders due at now whose lease is free.
	ListDue(ctx context.Context, now, leaseCutoff time.Time, limit int) ([]*domain.ReminderSchedule, error)
	// Claim takes the lease on a due reminder. It reports false when another
	// run holds it or it is no longer scheduled.
	Claim(ctx context.Context, id int64, token string, now, leaseCutoff time.Time) (bool, error)
	// Complete moves a claimed reminder to a terminal status. It reports
	// false if the claim was lost or the reminder was cancelled meanwhile.
	Complete(ctx context.Context, id int64, token string, result ReminderResult) (bool, error)
}

// ReminderResult is the outcome written by Complete
type ReminderResult struct {
	Status  domain.ReminderStatus
	SentAt  *time.Time
	EmailID string
	Error   string
	At      time.Time
}
