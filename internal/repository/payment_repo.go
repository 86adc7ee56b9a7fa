package repository

import (
	"context"
	"fmt"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/domain"
)

// PaymentRepo is a SQLite implementation of PaymentRepository
type PaymentRepo struct {
	q db.Querier
}

func NewPaymentRepo(q db.Querier) *PaymentRepo {
	return &PaymentRepo{q: q}
}

func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (invoice_id, amount, method, status, reference, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.InvoiceID, p.Amount, string(p.Method), string(p.Status), p.Reference, p.Notes, formatTime(p.CreatedAt))
	if err != nil {
		return translateError("record payment", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get payment ID: %w", err)
	}
	p.ID = id
	return nil
}

func (r *PaymentRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, invoice_id, amount, method, status, reference, notes, created_at
		FROM payments
		WHERE invoice_id = ?
		ORDER BY created_at, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p := &domain.Payment{}
		var method, status, createdAt string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &status, &p.Reference, &p.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Method = domain.PaymentMethod(method)
		p.Status = domain.PaymentStatus(status)
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepo) CountByInvoice(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = ?`, invoiceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}
