package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository"
)

// ReminderScheduler owns the reminder queue of each invoice
type ReminderScheduler interface {
	// Schedule replaces the pending reminders of an invoice with a fresh set
	// computed from its due date and returns how many were scheduled.
	Schedule(ctx context.Context, owner, invoiceID int64) (int, error)

	// Cancel cancels every pending reminder of an invoice
	Cancel(ctx context.Context, owner, invoiceID int64) (int, error)

	// SendManual sends a reminder now and records it
	SendManual(ctx context.Context, owner, invoiceID int64) (*domain.ReminderSchedule, error)

	// List returns all reminders of an invoice, oldest first
	List(ctx context.Context, owner, invoiceID int64) ([]*domain.ReminderSchedule, error)
}

type reminderScheduler struct {
	base
}

func NewReminderScheduler(d Deps) ReminderScheduler {
	return &reminderScheduler{base: newBase(d)}
}

// planReminders computes the reminders to insert for inv at now. Steps still
// in the future are scheduled at dueDay+offset+sendHour. With catchUp, the
// latest overdue step that is already past is scheduled for now unless it,
// or a later step, was already sent.
func planReminders(s Settings, inv *domain.Invoice, history []*domain.ReminderSchedule, now time.Time) []*domain.ReminderSchedule {
	cadence := append([]domain.CadenceStep(nil), s.Cadence...)
	sort.SliceStable(cadence, func(i, j int) bool { return cadence[i].DaysOffset < cadence[j].DaysOffset })

	anchor := domain.StartOfDay(inv.DueDate).Add(time.Duration(s.SendHour) * time.Hour)
	planned := make([]*domain.ReminderSchedule, 0, len(cadence))
	var missed *domain.CadenceStep
	for _, step := range cadence {
		at := anchor.AddDate(0, 0, step.DaysOffset)
		if at.After(now) {
			planned = append(planned, domain.NewReminderSchedule(inv.ID, step, at))
			continue
		}
		if step.Type.IsOverdue() {
			missed = &domain.CadenceStep{Type: step.Type, DaysOffset: step.DaysOffset}
		}
	}

	if s.CatchUpOverdue && missed != nil && !sentSince(history, missed.DaysOffset) {
		planned = append([]*domain.ReminderSchedule{domain.NewReminderSchedule(inv.ID, *missed, now)}, planned...)
	}
	return planned
}

func sentSince(history []*domain.ReminderSchedule, offset int) bool {
	for _, r := range history {
		if r.Status == domain.ReminderStatusSent && r.DaysOffset >= offset {
			return true
		}
	}
	return false
}

// scheduleInTx cancels the pending reminders of inv and inserts a fresh set.
// Invoices that are not awaiting payment end up with none.
func (b base) scheduleInTx(ctx context.Context, tx repository.Store, inv *domain.Invoice, now time.Time) (int, error) {
	if _, err := tx.Reminders().CancelScheduled(ctx, inv.ID, now); err != nil {
		return 0, fmt.Errorf("failed to cancel reminders: %w", err)
	}
	if !b.Settings.RemindersEnabled || !inv.Status.AwaitingPayment() || inv.BalanceDue() == 0 {
		return 0, nil
	}

	history, err := tx.Reminders().ListByInvoice(ctx, inv.ID)
	if err != nil {
		return 0, err
	}
	planned := planReminders(b.Settings, inv, history, now)
	for _, rem := range planned {
		if err := tx.Reminders().Create(ctx, rem); err != nil {
			return 0, fmt.Errorf("failed to schedule reminder: %w", err)
		}
	}
	return len(planned), nil
}

func (s *reminderScheduler) Schedule(ctx context.Context, owner, invoiceID int64) (int, error) {
	var count int
	err := s.retry(ctx, "schedule_reminders", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			inv, err := ownedInvoice(ctx, tx, owner, invoiceID)
			if err != nil {
				return err
			}
			count, err = s.scheduleInTx(ctx, tx, inv, s.now())
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	s.Metrics.ReminderScheduled(count)
	s.Logger.Debug().Int64("invoice_id", invoiceID).Int("count", count).Msg("reminders scheduled")
	return count, nil
}

func (s *reminderScheduler) Cancel(ctx context.Context, owner, invoiceID int64) (int, error) {
	var count int64
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := ownedInvoice(ctx, tx, owner, invoiceID); err != nil {
			return err
		}
		var err error
		count, err = tx.Reminders().CancelScheduled(ctx, invoiceID, s.now())
		return err
	})
	return int(count), err
}

func (s *reminderScheduler) List(ctx context.Context, owner, invoiceID int64) ([]*domain.ReminderSchedule, error) {
	if _, err := ownedInvoice(ctx, s.Store, owner, invoiceID); err != nil {
		return nil, err
	}
	return s.Store.Reminders().ListByInvoice(ctx, invoiceID)
}

func (s *reminderScheduler) SendManual(ctx context.Context, owner, invoiceID int64) (*domain.ReminderSchedule, error) {
	now := s.now()
	inv, err := ownedInvoice(ctx, s.Store, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.AwaitingPayment() {
		return nil, &domain.Error{Kind: domain.ErrInvalidTransition, Message: fmt.Sprintf("cannot send a reminder for a %s invoice", inv.Status)}
	}
	if inv.BalanceDue() == 0 {
		return nil, domain.Validation("invoice_id", "invoice has no balance due")
	}
	client, err := s.Store.Clients().GetByID(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}

	step := domain.ReminderTypeFor(s.Settings.Cadence, inv.DueDate, now)
	rem := domain.NewReminderSchedule(inv.ID, step, now)
	rem.Manual = true

	res, sendErr := s.deliver(ctx, inv, client, string(step.Type), fmt.Sprintf("manual-reminder-%d-%d", inv.ID, now.Unix()), now)
	if sendErr != nil {
		rem.Status = domain.ReminderStatusFailed
		rem.Error = sendErr.Error()
	} else {
		rem.Status = domain.ReminderStatusSent
		rem.SentAt = &now
		rem.EmailID = res.ID
	}

	err = s.retry(ctx, "manual_reminder", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			rem.ID = 0
			if err := tx.Reminders().Create(ctx, rem); err != nil {
				return err
			}
			if sendErr != nil {
				return nil
			}
			fresh, err := tx.Invoices().GetByID(ctx, inv.ID)
			if err != nil {
				return err
			}
			fresh.RecordReminderSent(now)
			return tx.Invoices().Update(ctx, fresh)
		})
	})
	if err != nil {
		return nil, err
	}

	if sendErr != nil {
		s.Metrics.ReminderDispatched("failed")
		s.publish(ctx, events.ReminderFailed, reminderEvent(rem))
		return rem, domain.Dependency("send reminder", sendErr)
	}
	s.Metrics.ReminderDispatched("sent")
	s.publish(ctx, events.ReminderSent, reminderEvent(rem))
	return rem, nil
}

// deliver renders the named template for inv and hands it to the notifier
func (b base) deliver(ctx context.Context, inv *domain.Invoice, client *domain.Client, tmpl, idempotencyKey string, now time.Time) (notifier.Result, error) {
	if b.Notifier == nil || b.Renderer == nil {
		return notifier.Result{}, fmt.Errorf("no notifier configured")
	}
	if client.Email == "" {
		return notifier.Result{}, fmt.Errorf("client %s has no email address", client.Name)
	}

	subject, html, err := b.Renderer.Render(tmpl, templateData(b.Settings, inv, client, now))
	if err != nil {
		return notifier.Result{}, err
	}
	return b.Notifier.Send(ctx, notifier.Message{
		To:      client.Email,
		Subject: subject,
		HTML:    html,
		ReplyTo: b.Settings.ReplyTo,
		Tags: map[string]string{
			"invoice_id": fmt.Sprintf("%d", inv.ID),
			"template":   tmpl,
		},
		IdempotencyKey: idempotencyKey,
	})
}

func templateData(s Settings, inv *domain.Invoice, client *domain.Client, now time.Time) notifier.TemplateData {
	untilDue := int(inv.DueDate.Sub(domain.StartOfDay(now)).Hours() / 24)
	if untilDue < 0 {
		untilDue = 0
	}
	return notifier.TemplateData{
		ClientName:    client.Name,
		InvoiceNumber: inv.InvoiceNumber,
		Total:         money.Format(inv.Total),
		AmountDue:     money.Format(inv.BalanceDue()),
		DueDate:       inv.DueDate.Format("2006-01-02"),
		DaysOverdue:   inv.DaysOverdue(now),
		DaysUntilDue:  untilDue,
		SenderName:    s.SenderName,
		SenderEmail:   s.SenderEmail,
	}
}

// ReminderEvent is the payload of reminder.* events
type ReminderEvent struct {
	ReminderID   int64  `json:"reminder_id"`
	InvoiceID    int64  `json:"invoice_id"`
	ReminderType string `json:"reminder_type"`
	Manual       bool   `json:"manual"`
	EmailID      string `json:"email_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func reminderEvent(r *domain.ReminderSchedule) ReminderEvent {
	return ReminderEvent{
		ReminderID:   r.ID,
		InvoiceID:    r.InvoiceID,
		ReminderType: string(r.ReminderType),
		Manual:       r.Manual,
		EmailID:      r.EmailID,
		Error:        r.Error,
	}
}
