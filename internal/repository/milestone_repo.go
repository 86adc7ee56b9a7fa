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

const milestoneColumns = `id, user_id, project_id, name, amount, status, invoice_id, created_at, updated_at`

// MilestoneRepo is a SQLite implementation of MilestoneRepository
type MilestoneRepo struct {
	q db.Querier
}

func NewMilestoneRepo(q db.Querier) *MilestoneRepo {
	return &MilestoneRepo{q: q}
}

func (r *MilestoneRepo) Create(ctx context.Context, m *domain.Milestone) error {
	if err := m.Validate(); err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO milestones (user_id, project_id, name, amount, status, invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.UserID, m.ProjectID, m.Name, m.Amount, string(m.Status), nullableInt(m.InvoiceID),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create milestone: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get milestone ID: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MilestoneRepo) GetByID(ctx context.Context, id int64) (*domain.Milestone, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("milestone", id)
		}
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	return m, nil
}

func (r *MilestoneRepo) List(ctx context.Context, userID int64, projectID *int64) ([]*domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE user_id = ?`
	args := []any{userID}
	if projectID != nil {
		query += " AND project_id = ?"
		args = append(args, *projectID)
	}
	query += " ORDER BY created_at"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MilestoneRepo) Update(ctx context.Context, m *domain.Milestone) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Status == domain.MilestoneStatusInvoiced {
		return domain.Immutable("milestone", "already invoiced")
	}

	m.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE milestones SET name = ?, amount = ?, status = ?, updated_at = ?
		WHERE id = ? AND status != 'invoiced'
	`, m.Name, m.Amount, string(m.Status), formatTime(m.UpdatedAt), m.ID)
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}
	return expectOne(result, func() error { return domain.Immutable("milestone", "already invoiced") })
}

func (r *MilestoneRepo) MarkInvoiced(ctx context.Context, ids []int64, invoiceID int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{invoiceID, formatTime(time.Now())}, int64Args(ids)...)
	result, err := r.q.ExecContext(ctx, `
		UPDATE milestones SET status = 'invoiced', invoice_id = ?, updated_at = ?
		WHERE id IN (`+placeholders(len(ids))+`) AND status = 'completed' AND invoice_id IS NULL
	`, args...)
	if err != nil {
		return translateError("invoice milestone", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to invoice milestones: %w", err)
	}
	if n != int64(len(ids)) {
		return domain.Concurrency("invoice milestone", fmt.Errorf("%d of %d milestones are no longer billable", int64(len(ids))-n, len(ids)))
	}
	return nil
}

func (r *MilestoneRepo) ReleaseInvoice(ctx context.Context, invoiceID int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE milestones SET status = 'completed', invoice_id = NULL, updated_at = ?
		WHERE invoice_id = ?
	`, formatTime(time.Now()), invoiceID)
	if err != nil {
		return fmt.Errorf("failed to release milestones: %w", err)
	}
	return nil
}

func scanMilestone(s rowScanner) (*domain.Milestone, error) {
	m := &domain.Milestone{}
	var status, createdAt, updatedAt string
	var invoiceID sql.NullInt64
	if err := s.Scan(&m.ID, &m.UserID, &m.ProjectID, &m.Name, &m.Amount, &status, &invoiceID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	m.Status = domain.MilestoneStatus(status)
	m.InvoiceID = nullInt(invoiceID)
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return m, nil
}
