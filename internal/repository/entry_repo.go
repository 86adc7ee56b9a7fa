package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/domain"
)

const entryColumns = `id, user_id, client_id, project_id, milestone_id, description, start_time, end_time,
	duration_minutes, hourly_rate, is_billable, is_billed, is_deleted, invoice_id, created_at, updated_at`

// EntryRepo is a SQLite implementation of TimeEntryRepository
type EntryRepo struct {
	q db.Querier
}

// NewEntryRepo creates a new EntryRepo
func NewEntryRepo(q db.Querier) *EntryRepo {
	return &EntryRepo{q: q}
}

// Create inserts a new time entry into the database
func (r *EntryRepo) Create(ctx context.Context, entry *domain.TimeEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO time_entries (
			user_id, client_id, project_id, milestone_id, description, start_time, end_time,
			duration_minutes, hourly_rate, is_billable, is_billed, is_deleted, invoice_id,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.q.ExecContext(ctx, query,
		entry.UserID,
		entry.ClientID,
		nullableInt(entry.ProjectID),
		nullableInt(entry.MilestoneID),
		entry.Description,
		formatTime(entry.StartTime),
		nullableTime(entry.EndTime),
		entry.DurationMinutes,
		nullableInt(entry.HourlyRate),
		entry.IsBillable,
		entry.IsBilled,
		entry.IsDeleted,
		nullableInt(entry.InvoiceID),
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		if entry.IsRunning() && errors.Is(translateError("create time entry", err), domain.ErrConcurrency) {
			return domain.Conflict("a timer is already running")
		}
		return fmt.Errorf("failed to create time entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get time entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// GetByID retrieves a time entry by ID
func (r *EntryRepo) GetByID(ctx context.Context, id int64) (*domain.TimeEntry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	entry, err := scanTimeEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("time entry", id)
		}
		return nil, fmt.Errorf("failed to get time entry: %w", err)
	}
	return entry, nil
}

// Update updates an unbilled time entry and records an audit trail of the
// changed fields
func (r *EntryRepo) Update(ctx context.Context, entry *domain.TimeEntry, reason string) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	old, err := r.GetByID(ctx, entry.ID)
	if err != nil {
		return err
	}
	if old.IsLocked() {
		return domain.Immutable(fmt.Sprintf("time entry %d", entry.ID), "billed on an invoice")
	}

	entry.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE time_entries
		SET client_id = ?, project_id = ?, milestone_id = ?, description = ?, start_time = ?,
		    end_time = ?, duration_minutes = ?, hourly_rate = ?, is_billable = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0 AND is_billed = 0
	`,
		entry.ClientID,
		nullableInt(entry.ProjectID),
		nullableInt(entry.MilestoneID),
		entry.Description,
		formatTime(entry.StartTime),
		nullableTime(entry.EndTime),
		entry.DurationMinutes,
		nullableInt(entry.HourlyRate),
		entry.IsBillable,
		formatTime(entry.UpdatedAt),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", err)
	}
	if err := expectOne(result, func() error {
		return domain.Immutable(fmt.Sprintf("time entry %d", entry.ID), "deleted or billed")
	}); err != nil {
		return err
	}

	for _, h := range domain.DiffEntries(old, entry, reason) {
		if err := r.insertHistory(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// SoftDelete marks an unbilled time entry as deleted
func (r *EntryRepo) SoftDelete(ctx context.Context, id int64, reason string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE time_entries SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND is_deleted = 0 AND is_billed = 0
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}
	if err := expectOne(result, func() error {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.Immutable(fmt.Sprintf("time entry %d", id), "billed or already deleted")
	}); err != nil {
		return err
	}

	return r.insertHistory(ctx, domain.NewEntryHistory(id, "is_deleted", "false", "true", reason))
}

// List retrieves an owner's time entries with optional filters
func (r *EntryRepo) List(ctx context.Context, filter EntryFilter) ([]*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE is_deleted = 0 AND user_id = ?`
	args := []any{filter.UserID}

	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.Start != nil {
		query += " AND start_time >= ?"
		args = append(args, formatTime(*filter.Start))
	}
	if filter.End != nil {
		query += " AND start_time <= ?"
		args = append(args, formatTime(*filter.End))
	}
	if filter.UnbilledOnly {
		query += " AND is_billed = 0"
	}
	query += " ORDER BY start_time DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.TimeEntry, 0)
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}
	return entries, nil
}

// GetRunning returns the owner's running entry, or nil
func (r *EntryRepo) GetRunning(ctx context.Context, userID int64) (*domain.TimeEntry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries
		WHERE user_id = ? AND end_time IS NULL AND is_deleted = 0`, userID)
	entry, err := scanTimeEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get running entry: %w", err)
	}
	return entry, nil
}

// MarkBilled locks entries to an invoice. Every entry must still be
// unbilled, stopped and not deleted.
func (r *EntryRepo) MarkBilled(ctx context.Context, ids []int64, invoiceID int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{invoiceID, formatTime(time.Now())}, int64Args(ids)...)
	result, err := r.q.ExecContext(ctx, `
		UPDATE time_entries
		SET is_billed = 1, invoice_id = ?, updated_at = ?
		WHERE id IN (`+placeholders(len(ids))+`) AND is_billed = 0 AND is_deleted = 0 AND end_time IS NOT NULL
	`, args...)
	if err != nil {
		return translateError("bill time entry", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to bill time entries: %w", err)
	}
	if n != int64(len(ids)) {
		return domain.Concurrency("bill time entry", fmt.Errorf("%d of %d entries are no longer billable", int64(len(ids))-n, len(ids)))
	}
	return nil
}

// ReleaseInvoice unbills every entry of a deleted invoice
func (r *EntryRepo) ReleaseInvoice(ctx context.Context, invoiceID int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE time_entries SET is_billed = 0, invoice_id = NULL, updated_at = ?
		WHERE invoice_id = ?
	`, formatTime(time.Now()), invoiceID)
	if err != nil {
		return fmt.Errorf("failed to release time entries: %w", err)
	}
	return nil
}

// GetHistory retrieves the audit trail for a time entry
func (r *EntryRepo) GetHistory(ctx context.Context, entryID int64) ([]*domain.EntryHistory, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, entry_id, field_name, old_value, new_value, change_reason, changed_at
		FROM entry_history
		WHERE entry_id = ?
		ORDER BY changed_at DESC, id DESC
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry history: %w", err)
	}
	defer rows.Close()

	history := make([]*domain.EntryHistory, 0)
	for rows.Next() {
		h := &domain.EntryHistory{}
		var oldValue, newValue, reason sql.NullString
		var changedAt string

		if err := rows.Scan(&h.ID, &h.EntryID, &h.FieldName, &oldValue, &newValue, &reason, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.OldValue, h.NewValue, h.ChangeReason = oldValue.String, newValue.String, reason.String
		if h.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("failed to parse changed_at: %w", err)
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

func (r *EntryRepo) insertHistory(ctx context.Context, h *domain.EntryHistory) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO entry_history (entry_id, field_name, old_value, new_value, change_reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.EntryID, h.FieldName, h.OldValue, h.NewValue, h.ChangeReason, formatTime(h.ChangedAt))
	if err != nil {
		return fmt.Errorf("failed to audit %s change: %w", h.FieldName, err)
	}
	return nil
}

func scanTimeEntry(s rowScanner) (*domain.TimeEntry, error) {
	entry := &domain.TimeEntry{}
	var projectID, milestoneID, rate, invoiceID sql.NullInt64
	var startTime, createdAt, updatedAt string
	var endTime sql.NullString

	err := s.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.ClientID,
		&projectID,
		&milestoneID,
		&entry.Description,
		&startTime,
		&endTime,
		&entry.DurationMinutes,
		&rate,
		&entry.IsBillable,
		&entry.IsBilled,
		&entry.IsDeleted,
		&invoiceID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ProjectID = nullInt(projectID)
	entry.MilestoneID = nullInt(milestoneID)
	entry.HourlyRate = nullInt(rate)
	entry.InvoiceID = nullInt(invoiceID)

	if entry.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if entry.EndTime, err = parseNullTime(endTime, "end_time"); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return entry, nil
}
