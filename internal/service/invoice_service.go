package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository"
)

// ItemInput is one manually entered invoice line
type ItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   int64
}

// CreateInvoiceRequest describes a manual draft invoice
type CreateInvoiceRequest struct {
	ClientID  int64
	ProjectID *int64
	IssueDate *time.Time
	DueDate   *time.Time
	Items     []ItemInput
	TaxRate   *decimal.Decimal
	Discount  int64
	Notes     string
}

// UpdateDraftRequest changes a draft; nil fields are left alone
type UpdateDraftRequest struct {
	Items    *[]ItemInput
	TaxRate  *decimal.Decimal
	Discount *int64
	Notes    *string
	DueDate  *time.Time
}

// InvoiceFilter narrows List. Status matches the derived status.
type InvoiceFilter struct {
	ClientID *int64
	Status   *domain.InvoiceStatus
}

// InvoiceService manages the invoice lifecycle
type InvoiceService interface {
	// Create creates a draft invoice with the next number in the owner's sequence
	Create(ctx context.Context, owner int64, req CreateInvoiceRequest) (*domain.Invoice, error)

	// Get returns an invoice with its items and derived status
	Get(ctx context.Context, owner, id int64) (*domain.Invoice, error)

	// GetByNumber looks an invoice up by its human number
	GetByNumber(ctx context.Context, owner int64, number string) (*domain.Invoice, error)

	// List returns invoices without items, newest first
	List(ctx context.Context, owner int64, filter InvoiceFilter) ([]*domain.Invoice, error)

	// UpdateDraft edits items, amounts, notes or due date of a draft
	UpdateDraft(ctx context.Context, owner, id int64, req UpdateDraftRequest) (*domain.Invoice, error)

	// ChangeDueDate moves the due date and reschedules pending reminders
	ChangeDueDate(ctx context.Context, owner, id int64, due time.Time) (*domain.Invoice, error)

	// Send moves a draft to sent, schedules reminders and emails the client
	Send(ctx context.Context, owner, id int64) (*domain.Invoice, error)

	// Transition applies any legal status change
	Transition(ctx context.Context, owner, id int64, to domain.InvoiceStatus) (*domain.Invoice, error)

	// MarkViewed records that the client opened a sent invoice
	MarkViewed(ctx context.Context, id int64) (*domain.Invoice, error)

	// Delete removes an invoice and releases its entries and milestones
	Delete(ctx context.Context, owner, id int64) error

	// SweepOverdue persists the overdue status of past-due invoices
	SweepOverdue(ctx context.Context) (int, error)
}

type invoiceService struct {
	base
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(d Deps) InvoiceService {
	return &invoiceService{base: newBase(d)}
}

// insertInvoice allocates the next number for inv and stores it with its items
func insertInvoice(ctx context.Context, tx repository.Store, prefix string, inv *domain.Invoice) error {
	year := inv.IssueDate.Year()
	seq, err := tx.Invoices().NextSequence(ctx, inv.UserID, year)
	if err != nil {
		return fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	inv.InvoiceNumber = domain.FormatInvoiceNumber(prefix, inv.UserID, year, seq)
	if err := tx.Invoices().Create(ctx, inv); err != nil {
		return err
	}
	return nil
}

// datesFor fills in the default issue and due dates
func (b base) datesFor(issue, due *time.Time) (time.Time, time.Time) {
	issueDate := b.now()
	if issue != nil {
		issueDate = *issue
	}
	dueDate := domain.StartOfDay(issueDate).AddDate(0, 0, b.Settings.DefaultDueDays)
	if due != nil {
		dueDate = *due
	}
	return issueDate, dueDate
}

func buildItems(inputs []ItemInput) []*domain.InvoiceItem {
	items := make([]*domain.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.NewInvoiceItem(in.Description, in.Quantity, in.UnitPrice))
	}
	return items
}

func (s *invoiceService) Create(ctx context.Context, owner int64, req CreateInvoiceRequest) (*domain.Invoice, error) {
	issue, due := s.datesFor(req.IssueDate, req.DueDate)
	taxRate := s.Settings.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	var inv *domain.Invoice
	err := s.retry(ctx, "create_invoice", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			if _, err := ownedClient(ctx, tx, owner, req.ClientID); err != nil {
				return err
			}
			if req.ProjectID != nil {
				if err := checkProject(ctx, tx, owner, req.ClientID, *req.ProjectID); err != nil {
					return err
				}
			}

			inv = domain.NewInvoice(owner, req.ClientID, req.ProjectID, issue, due)
			inv.Notes = req.Notes
			if err := inv.SetItems(buildItems(req.Items)); err != nil {
				return err
			}
			if err := inv.SetAmounts(taxRate, req.Discount); err != nil {
				return err
			}
			if err := inv.Validate(); err != nil {
				return err
			}
			return insertInvoice(ctx, tx, s.Settings.NumberPrefix, inv)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.InvoiceCreated("manual")
	s.publish(ctx, events.InvoiceCreated, invoiceEvent(inv))
	s.Logger.Info().Int64("invoice_id", inv.ID).Str("number", inv.InvoiceNumber).Msg("invoice created")
	return inv, nil
}

func checkProject(ctx context.Context, tx repository.Store, owner, clientID, projectID int64) error {
	project, err := tx.Projects().GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.UserID != owner {
		return domain.NotFound("project", projectID)
	}
	if project.ClientID != clientID {
		return domain.Validation("project_id", "project belongs to a different client")
	}
	return nil
}

func (s *invoiceService) Get(ctx context.Context, owner, id int64) (*domain.Invoice, error) {
	inv, err := ownedInvoice(ctx, s.Store, owner, id)
	if err != nil {
		return nil, err
	}
	inv.Status = domain.DeriveStatus(inv, s.now())
	return inv, nil
}

func (s *invoiceService) GetByNumber(ctx context.Context, owner int64, number string) (*domain.Invoice, error) {
	inv, err := s.Store.Invoices().GetByNumber(ctx, owner, number)
	if err != nil {
		return nil, err
	}
	inv.Status = domain.DeriveStatus(inv, s.now())
	return inv, nil
}

func (s *invoiceService) List(ctx context.Context, owner int64, filter InvoiceFilter) ([]*domain.Invoice, error) {
	invoices, err := s.Store.Invoices().List(ctx, repository.InvoiceFilter{UserID: owner, ClientID: filter.ClientID})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]*domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		inv.Status = domain.DeriveStatus(inv, now)
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *invoiceService) UpdateDraft(ctx context.Context, owner, id int64, req UpdateDraftRequest) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := s.retry(ctx, "update_invoice", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			inv, err = ownedInvoice(ctx, tx, owner, id)
			if err != nil {
				return err
			}
			if !inv.CanEdit() {
				return domain.Immutable("invoice "+inv.InvoiceNumber, fmt.Sprintf("a %s invoice cannot be edited", inv.Status))
			}

			if req.Items != nil {
				if err := inv.SetItems(buildItems(*req.Items)); err != nil {
					return err
				}
			}
			taxRate, discount := inv.TaxRate, inv.DiscountAmount
			if req.TaxRate != nil {
				taxRate = *req.TaxRate
			}
			if req.Discount != nil {
				discount = *req.Discount
			}
			if err := inv.SetAmounts(taxRate, discount); err != nil {
				return err
			}
			if req.Notes != nil {
				inv.Notes = *req.Notes
			}
			if req.DueDate != nil {
				if err := inv.SetDueDate(*req.DueDate); err != nil {
					return err
				}
			}

			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			if req.Items != nil {
				return tx.Invoices().ReplaceItems(ctx, inv.ID, inv.Items)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) ChangeDueDate(ctx context.Context, owner, id int64, due time.Time) (*domain.Invoice, error) {
	var inv *domain.Invoice
	var scheduled int
	err := s.retry(ctx, "change_due_date", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			inv, err = ownedInvoice(ctx, tx, owner, id)
			if err != nil {
				return err
			}
			if err := inv.SetDueDate(due); err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			if !inv.Status.AwaitingPayment() {
				return nil
			}
			scheduled, err = s.scheduleInTx(ctx, tx, inv, s.now())
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.ReminderScheduled(scheduled)
	return inv, nil
}

func (s *invoiceService) Send(ctx context.Context, owner, id int64) (*domain.Invoice, error) {
	now := s.now()
	var inv *domain.Invoice
	var scheduled int
	err := s.retry(ctx, "send_invoice", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			inv, err = ownedInvoice(ctx, tx, owner, id)
			if err != nil {
				return err
			}
			if err := inv.TransitionTo(domain.InvoiceStatusSent, now); err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			scheduled, err = s.scheduleInTx(ctx, tx, inv, now)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.InvoiceTransitioned(string(domain.InvoiceStatusSent))
	s.Metrics.ReminderScheduled(scheduled)
	s.publish(ctx, events.InvoiceSent, invoiceEvent(inv))
	s.emailInvoice(ctx, inv, now)
	return inv, nil
}

// emailInvoice sends the invoice to the client. A failure is logged and
// never undoes the send.
func (s *invoiceService) emailInvoice(ctx context.Context, inv *domain.Invoice, now time.Time) {
	if s.Notifier == nil || s.Renderer == nil {
		return
	}
	client, err := s.Store.Clients().GetByID(ctx, inv.ClientID)
	if err != nil {
		s.Logger.Warn().Err(err).Int64("invoice_id", inv.ID).Msg("failed to load client for invoice email")
		return
	}
	res, err := s.deliver(ctx, inv, client, notifier.TemplateInvoiceSent, fmt.Sprintf("invoice-sent-%d", inv.ID), now)
	if err != nil {
		s.Logger.Warn().Err(err).Int64("invoice_id", inv.ID).Msg("failed to email invoice")
		return
	}
	s.Logger.Info().Int64("invoice_id", inv.ID).Str("email_id", res.ID).Msg("invoice emailed")
}

func (s *invoiceService) Transition(ctx context.Context, owner, id int64, to domain.InvoiceStatus) (*domain.Invoice, error) {
	if to == domain.InvoiceStatusSent {
		return s.Send(ctx, owner, id)
	}

	now := s.now()
	var inv *domain.Invoice
	err := s.retry(ctx, "transition_invoice", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			inv, err = ownedInvoice(ctx, tx, owner, id)
			if err != nil {
				return err
			}
			if to == domain.InvoiceStatusDraft && inv.Status == domain.InvoiceStatusCancelled && !s.Settings.AllowReactivation {
				return &domain.Error{Kind: domain.ErrInvalidTransition, Message: "reactivating cancelled invoices is disabled"}
			}
			if err := inv.TransitionTo(to, now); err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			if to == domain.InvoiceStatusPaid || to == domain.InvoiceStatusCancelled {
				_, err = tx.Reminders().CancelScheduled(ctx, inv.ID, now)
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.InvoiceTransitioned(string(to))
	key := events.InvoiceStatusChanged
	if to == domain.InvoiceStatusPaid {
		key = events.InvoicePaid
	}
	s.publish(ctx, key, invoiceEvent(inv))
	return inv, nil
}

func (s *invoiceService) MarkViewed(ctx context.Context, id int64) (*domain.Invoice, error) {
	now := s.now()
	var inv *domain.Invoice
	var changed bool
	err := s.retry(ctx, "mark_viewed", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			inv, err = tx.Invoices().GetByID(ctx, id)
			if err != nil {
				return err
			}
			changed = false
			if inv.Status != domain.InvoiceStatusSent {
				return nil
			}
			if err := inv.TransitionTo(domain.InvoiceStatusViewed, now); err != nil {
				return err
			}
			changed = true
			return tx.Invoices().Update(ctx, inv)
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.Metrics.InvoiceTransitioned(string(domain.InvoiceStatusViewed))
		s.publish(ctx, events.InvoiceStatusChanged, invoiceEvent(inv))
	}
	inv.Status = domain.DeriveStatus(inv, now)
	return inv, nil
}

func (s *invoiceService) Delete(ctx context.Context, owner, id int64) error {
	var inv *domain.Invoice
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		inv, err = ownedInvoice(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		payments, err := tx.Payments().CountByInvoice(ctx, id)
		if err != nil {
			return err
		}
		if payments > 0 && !s.Settings.AllowDeleteWithPayments {
			return domain.Conflict(fmt.Sprintf("invoice %s has %d recorded payment(s) and cannot be deleted", inv.InvoiceNumber, payments))
		}
		if err := tx.Entries().ReleaseInvoice(ctx, id); err != nil {
			return fmt.Errorf("failed to release time entries: %w", err)
		}
		if err := tx.Milestones().ReleaseInvoice(ctx, id); err != nil {
			return fmt.Errorf("failed to release milestones: %w", err)
		}
		return tx.Invoices().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.InvoiceDeleted, invoiceEvent(inv))
	s.Logger.Info().Int64("invoice_id", id).Str("number", inv.InvoiceNumber).Msg("invoice deleted")
	return nil
}

func (s *invoiceService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.Store.Invoices().ListPastDue(ctx, domain.StartOfDay(now))
	if err != nil {
		return 0, fmt.Errorf("failed to list past-due invoices: %w", err)
	}

	marked := 0
	for _, candidate := range candidates {
		var inv *domain.Invoice
		err := s.retry(ctx, "sweep_overdue", func() error {
			return s.Store.WithTx(ctx, func(tx repository.Store) error {
				var err error
				inv, err = tx.Invoices().GetByID(ctx, candidate.ID)
				if err != nil {
					return err
				}
				if inv.Status == domain.InvoiceStatusOverdue || domain.DeriveStatus(inv, now) != domain.InvoiceStatusOverdue {
					inv = nil
					return nil
				}
				if err := inv.TransitionTo(domain.InvoiceStatusOverdue, now); err != nil {
					return err
				}
				return tx.Invoices().Update(ctx, inv)
			})
		})
		if err != nil {
			s.Logger.Error().Err(err).Int64("invoice_id", candidate.ID).Msg("failed to mark invoice overdue")
			continue
		}
		if inv == nil {
			continue
		}
		marked++
		s.Metrics.InvoiceTransitioned(string(domain.InvoiceStatusOverdue))
		s.publish(ctx, events.InvoiceStatusChanged, invoiceEvent(inv))
	}
	return marked, nil
}
