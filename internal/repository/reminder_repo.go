package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/domain"
)

const reminderColumns = `id, invoice_id, reminder_type, days_offset, scheduled_for, status, sent_at,
	email_id, error, manual, claim_token, claimed_at, created_at, updated_at`

// ReminderRepo is a SQLite implementation of ReminderRepository. The table is
// the dispatcher's work queue.
type ReminderRepo struct {
	q db.Querier
}

func NewReminderRepo(q db.Querier) *ReminderRepo {
	return &ReminderRepo{q: q}
}

func (r *ReminderRepo) Create(ctx context.Context, rem *domain.ReminderSchedule) error {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO reminder_schedules (
			invoice_id, reminder_type, days_offset, scheduled_for, status, sent_at,
			email_id, error, manual, claim_token, claimed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rem.InvoiceID,
		string(rem.ReminderType),
		rem.DaysOffset,
		formatTime(rem.ScheduledFor),
		string(rem.Status),
		nullableTime(rem.SentAt),
		rem.EmailID,
		rem.Error,
		rem.Manual,
		rem.ClaimToken,
		nullableTime(rem.ClaimedAt),
		formatTime(rem.CreatedAt),
		formatTime(rem.UpdatedAt),
	)
	if err != nil {
		return translateError("schedule reminder", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get reminder ID: %w", err)
	}
	rem.ID = id
	return nil
}

func (r *ReminderRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.ReminderSchedule, error) {
	return r.query(ctx, `SELECT `+reminderColumns+` FROM reminder_schedules
		WHERE invoice_id = ? ORDER BY scheduled_for, id`, invoiceID)
}

func (r *ReminderRepo) CancelScheduled(ctx context.Context, invoiceID int64, at time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE reminder_schedules SET status = 'cancelled', updated_at = ?
		WHERE invoice_id = ? AND status = 'scheduled'
	`, formatTime(at), invoiceID)
	if err != nil {
		return 0, translateError("cancel reminders", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *ReminderRepo) Cancel(ctx context.Context, id int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE reminder_schedules SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'scheduled'
	`, formatTime(at), id)
	if err != nil {
		return translateError("cancel reminder", err)
	}
	return nil
}

func (r *ReminderRepo) ListDue(ctx context.Context, now, leaseCutoff time.Time, limit int) ([]*domain.ReminderSchedule, error) {
	return r.query(ctx, `SELECT `+reminderColumns+` FROM reminder_schedules
		WHERE status = 'scheduled' AND scheduled_for <= ?
		  AND (claimed_at IS NULL OR claimed_at < ?)
		ORDER BY scheduled_for, id
		LIMIT ?`, formatTime(now), formatTime(leaseCutoff), limit)
}

func (r *ReminderRepo) Claim(ctx context.Context, id int64, token string, now, leaseCutoff time.Time) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE reminder_schedules SET claim_token = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'scheduled' AND (claimed_at IS NULL OR claimed_at < ?)
	`, token, formatTime(now), formatTime(now), id, formatTime(leaseCutoff))
	if err != nil {
		return false, translateError("claim reminder", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *ReminderRepo) Complete(ctx context.Context, id int64, token string, res ReminderResult) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE reminder_schedules
		SET status = ?, sent_at = ?, email_id = ?, error = ?, updated_at = ?
		WHERE id = ? AND claim_token = ? AND status = 'scheduled'
	`, string(res.Status), nullableTime(res.SentAt), res.EmailID, res.Error, formatTime(res.At), id, token)
	if err != nil {
		return false, translateError("complete reminder", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *ReminderRepo) query(ctx context.Context, query string, args ...any) ([]*domain.ReminderSchedule, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.ReminderSchedule, 0)
	for rows.Next() {
		rem := &domain.ReminderSchedule{}
		var reminderType, scheduledFor, status, createdAt, updatedAt string
		var sentAt, claimedAt sql.NullString

		err := rows.Scan(
			&rem.ID,
			&rem.InvoiceID,
			&reminderType,
			&rem.DaysOffset,
			&scheduledFor,
			&status,
			&sentAt,
			&rem.EmailID,
			&rem.Error,
			&rem.Manual,
			&rem.ClaimToken,
			&claimedAt,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}

		rem.ReminderType = domain.ReminderType(reminderType)
		rem.Status = domain.ReminderStatus(status)
		if rem.ScheduledFor, err = parseTime(scheduledFor); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled_for: %w", err)
		}
		if rem.SentAt, err = parseNullTime(sentAt, "sent_at"); err != nil {
			return nil, err
		}
		if rem.ClaimedAt, err = parseNullTime(claimedAt, "claimed_at"); err != nil {
			return nil, err
		}
		if rem.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if rem.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		out = append(out, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return out, nil
}
