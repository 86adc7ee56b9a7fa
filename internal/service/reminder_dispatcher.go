package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/repository"
)

// DispatchResult summarizes one dispatcher run
type DispatchResult struct {
	Evaluated int `json:"evaluated"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// ReminderDispatcher sends due reminders. It keeps no state between runs and
// is safe to run concurrently with itself.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context) (DispatchResult, error)
}

type reminderDispatcher struct {
	base
}

func NewReminderDispatcher(d Deps) ReminderDispatcher {
	return &reminderDispatcher{base: newBase(d)}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeCancelled
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeFailed:
		return "failed"
	case outcomeCancelled:
		return "cancelled"
	default:
		return "skipped"
	}
}

func (d *reminderDispatcher) Dispatch(ctx context.Context) (DispatchResult, error) {
	start := time.Now()
	now := d.now()
	var result DispatchResult

	due, err := d.Store.Reminders().ListDue(ctx, now, now.Add(-d.Settings.Lease), d.Settings.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list due reminders: %w", err)
	}

	for _, rem := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Evaluated++

		out, err := d.process(ctx, rem, now)
		if err != nil {
			d.Logger.Error().Err(err).Int64("reminder_id", rem.ID).Int64("invoice_id", rem.InvoiceID).Msg("reminder dispatch failed")
		}
		switch out {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeCancelled:
			result.Cancelled++
		default:
			result.Skipped++
		}
		d.Metrics.ReminderDispatched(out.String())
	}

	d.Metrics.DispatchObserved(time.Since(start))
	d.Logger.Info().
		Int("evaluated", result.Evaluated).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("cancelled", result.Cancelled).
		Msg("reminder dispatch finished")
	return result, nil
}

// process handles one due reminder. The returned error is informational; the
// outcome has already been recorded where possible.
func (d *reminderDispatcher) process(ctx context.Context, rem *domain.ReminderSchedule, now time.Time) (outcome, error) {
	token := uuid.NewString()
	claimed, err := d.Store.Reminders().Claim(ctx, rem.ID, token, now, now.Add(-d.Settings.Lease))
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to claim reminder: %w", err)
	}
	if !claimed {
		return outcomeSkipped, nil
	}

	inv, err := d.Store.Invoices().GetByID(ctx, rem.InvoiceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return d.fail(ctx, rem, token, now, err)
	}
	if inv == nil || !inv.Status.AwaitingPayment() || inv.BalanceDue() == 0 {
		if err := d.Store.Reminders().Cancel(ctx, rem.ID, now); err != nil {
			return outcomeFailed, fmt.Errorf("failed to cancel reminder: %w", err)
		}
		return outcomeCancelled, nil
	}

	client, err := d.Store.Clients().GetByID(ctx, inv.ClientID)
	if err != nil {
		return d.fail(ctx, rem, token, now, err)
	}

	res, sendErr := d.deliver(ctx, inv, client, string(rem.ReminderType), fmt.Sprintf("reminder-%d", rem.ID), now)
	if sendErr != nil {
		return d.fail(ctx, rem, token, now, sendErr)
	}

	sentAt := now
	var recorded bool
	err = d.retry(ctx, "record_reminder", func() error {
		return d.Store.WithTx(ctx, func(tx repository.Store) error {
			var err error
			recorded, err = tx.Reminders().Complete(ctx, rem.ID, token, repository.ReminderResult{
				Status:  domain.ReminderStatusSent,
				SentAt:  &sentAt,
				EmailID: res.ID,
				At:      now,
			})
			if err != nil || !recorded {
				return err
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
		return outcomeFailed, fmt.Errorf("reminder %d was sent but not recorded: %w", rem.ID, err)
	}
	if !recorded {
		d.Logger.Warn().Int64("reminder_id", rem.ID).Msg("reminder sent after its claim was lost")
		return outcomeSkipped, nil
	}

	rem.Status = domain.ReminderStatusSent
	rem.EmailID = res.ID
	d.publish(ctx, events.ReminderSent, reminderEvent(rem))
	return outcomeSent, nil
}

func (d *reminderDispatcher) fail(ctx context.Context, rem *domain.ReminderSchedule, token string, now time.Time, cause error) (outcome, error) {
	_, err := d.Store.Reminders().Complete(ctx, rem.ID, token, repository.ReminderResult{
		Status: domain.ReminderStatusFailed,
		Error:  cause.Error(),
		At:     now,
	})
	if err != nil {
		return outcomeFailed, errors.Join(cause, fmt.Errorf("failed to record failure: %w", err))
	}
	rem.Status = domain.ReminderStatusFailed
	rem.Error = cause.Error()
	d.publish(ctx, events.ReminderFailed, reminderEvent(rem))
	return outcomeFailed, domain.Dependency("send reminder", cause)
}
