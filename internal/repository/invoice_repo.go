package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/domain"
)

const invoiceColumns = `id, user_id, client_id, project_id, invoice_number, status, issue_date, due_date,
	subtotal, tax_rate, tax_amount, discount_amount, total, amount_paid, notes,
	sent_at, viewed_at, paid_at, cancelled_at, last_reminder_at, reminder_count,
	version, created_at, updated_at`

// InvoiceRepo is a SQLite implementation of InvoiceRepository
type InvoiceRepo struct {
	q db.Querier
}

// NewInvoiceRepo creates a new InvoiceRepo
func NewInvoiceRepo(q db.Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create inserts a new invoice and its items
func (r *InvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return err
	}
	if invoice.InvoiceNumber == "" {
		return domain.Validation("invoice_number", "invoice number is required")
	}

	query := `
		INSERT INTO invoices (
			user_id, client_id, project_id, invoice_number, status, issue_date, due_date,
			subtotal, tax_rate, tax_amount, discount_amount, total, amount_paid, notes,
			sent_at, viewed_at, paid_at, cancelled_at, last_reminder_at, reminder_count,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if invoice.Version == 0 {
		invoice.Version = 1
	}

	result, err := r.q.ExecContext(ctx, query,
		invoice.UserID,
		invoice.ClientID,
		nullableInt(invoice.ProjectID),
		invoice.InvoiceNumber,
		string(invoice.Status),
		formatTime(invoice.IssueDate),
		formatTime(invoice.DueDate),
		invoice.Subtotal,
		invoice.TaxRate.String(),
		invoice.TaxAmount,
		invoice.DiscountAmount,
		invoice.Total,
		invoice.AmountPaid,
		invoice.Notes,
		nullableTime(invoice.SentAt),
		nullableTime(invoice.ViewedAt),
		nullableTime(invoice.PaidAt),
		nullableTime(invoice.CancelledAt),
		nullableTime(invoice.LastReminderAt),
		invoice.ReminderCount,
		invoice.Version,
		formatTime(invoice.CreatedAt),
		formatTime(invoice.UpdatedAt),
	)
	if err != nil {
		return translateError("create invoice", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice ID: %w", err)
	}
	invoice.ID = id

	return r.insertItems(ctx, id, invoice.Items)
}

// GetByID retrieves an invoice with its items
func (r *InvoiceRepo) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("invoice", id)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if invoice.Items, err = r.getItems(ctx, id); err != nil {
		return nil, err
	}
	return invoice, nil
}

// GetByNumber retrieves an owner's invoice by number
func (r *InvoiceRepo) GetByNumber(ctx context.Context, userID int64, number string) (*domain.Invoice, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = ? AND invoice_number = ?`, userID, number)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Message: fmt.Sprintf("invoice %s not found", number)}
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if invoice.Items, err = r.getItems(ctx, invoice.ID); err != nil {
		return nil, err
	}
	return invoice, nil
}

// List retrieves invoices without items
func (r *InvoiceRepo) List(ctx context.Context, filter InvoiceFilter) ([]*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY issue_date DESC, id DESC"

	return r.queryInvoices(ctx, query, args...)
}

// ListPastDue returns sent or viewed invoices whose due date is before cutoff
func (r *InvoiceRepo) ListPastDue(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN ('sent', 'viewed') AND due_date < ?
		ORDER BY due_date`, formatTime(cutoff))
}

// Update writes the invoice row guarded by its version
func (r *InvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return err
	}

	invoice.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE invoices
		SET project_id = ?, status = ?, issue_date = ?, due_date = ?,
		    subtotal = ?, tax_rate = ?, tax_amount = ?, discount_amount = ?, total = ?,
		    amount_paid = ?, notes = ?, sent_at = ?, viewed_at = ?, paid_at = ?, cancelled_at = ?,
		    last_reminder_at = ?, reminder_count = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		nullableInt(invoice.ProjectID),
		string(invoice.Status),
		formatTime(invoice.IssueDate),
		formatTime(invoice.DueDate),
		invoice.Subtotal,
		invoice.TaxRate.String(),
		invoice.TaxAmount,
		invoice.DiscountAmount,
		invoice.Total,
		invoice.AmountPaid,
		invoice.Notes,
		nullableTime(invoice.SentAt),
		nullableTime(invoice.ViewedAt),
		nullableTime(invoice.PaidAt),
		nullableTime(invoice.CancelledAt),
		nullableTime(invoice.LastReminderAt),
		invoice.ReminderCount,
		formatTime(invoice.UpdatedAt),
		invoice.ID,
		invoice.Version,
	)
	if err != nil {
		return translateError("update invoice", err)
	}

	err = expectOne(result, func() error {
		if _, err := r.GetByID(ctx, invoice.ID); err != nil {
			return err
		}
		return domain.Concurrency("update invoice", fmt.Errorf("invoice %d changed since version %d", invoice.ID, invoice.Version))
	})
	if err != nil {
		return err
	}

	invoice.Version++
	return nil
}

// ReplaceItems swaps the full item list of an invoice
func (r *InvoiceRepo) ReplaceItems(ctx context.Context, invoiceID int64, items []*domain.InvoiceItem) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, invoiceID); err != nil {
		return fmt.Errorf("failed to clear invoice items: %w", err)
	}
	return r.insertItems(ctx, invoiceID, items)
}

// Delete removes an invoice; items, payments and reminders cascade
func (r *InvoiceRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return expectOne(result, func() error { return domain.NotFound("invoice", id) })
}

// NextSequence bumps the owner's yearly invoice counter
func (r *InvoiceRepo) NextSequence(ctx context.Context, userID int64, year int) (int64, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invoice_sequences (user_id, year, last_value) VALUES (?, ?, 1)
		ON CONFLICT (user_id, year) DO UPDATE SET last_value = last_value + 1
	`, userID, year)
	if err != nil {
		return 0, translateError("allocate invoice number", err)
	}

	var seq int64
	err = r.q.QueryRowContext(ctx,
		`SELECT last_value FROM invoice_sequences WHERE user_id = ? AND year = ?`, userID, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice sequence: %w", err)
	}
	return seq, nil
}

func (r *InvoiceRepo) insertItems(ctx context.Context, invoiceID int64, items []*domain.InvoiceItem) error {
	for pos, item := range items {
		item.InvoiceID = invoiceID
		item.Position = pos
		result, err := r.q.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, total, milestone_id, time_entry_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			invoiceID,
			item.Position,
			item.Description,
			item.Quantity.StringFixed(2),
			item.UnitPrice,
			item.Total,
			nullableInt(item.MilestoneID),
			nullableInt(item.TimeEntryID),
		)
		if err != nil {
			return fmt.Errorf("failed to add invoice item: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get invoice item ID: %w", err)
		}
		item.ID = id
	}
	return nil
}

func (r *InvoiceRepo) getItems(ctx context.Context, invoiceID int64) ([]*domain.InvoiceItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, invoice_id, position, description, quantity, unit_price, total, milestone_id, time_entry_id
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY position, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.InvoiceItem, 0)
	for rows.Next() {
		item := &domain.InvoiceItem{}
		var quantity string
		var milestoneID, entryID sql.NullInt64

		err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Position,
			&item.Description,
			&quantity,
			&item.UnitPrice,
			&item.Total,
			&milestoneID,
			&entryID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}

		if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}
		item.MilestoneID = nullInt(milestoneID)
		item.TimeEntryID = nullInt(entryID)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice items: %w", err)
	}
	return items, nil
}

func (r *InvoiceRepo) queryInvoices(ctx context.Context, query string, args ...any) ([]*domain.Invoice, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(s rowScanner) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var projectID sql.NullInt64
	var status, issueDate, dueDate, taxRate, createdAt, updatedAt string
	var sentAt, viewedAt, paidAt, cancelledAt, lastReminderAt sql.NullString

	err := s.Scan(
		&invoice.ID,
		&invoice.UserID,
		&invoice.ClientID,
		&projectID,
		&invoice.InvoiceNumber,
		&status,
		&issueDate,
		&dueDate,
		&invoice.Subtotal,
		&taxRate,
		&invoice.TaxAmount,
		&invoice.DiscountAmount,
		&invoice.Total,
		&invoice.AmountPaid,
		&invoice.Notes,
		&sentAt,
		&viewedAt,
		&paidAt,
		&cancelledAt,
		&lastReminderAt,
		&invoice.ReminderCount,
		&invoice.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.ProjectID = nullInt(projectID)
	invoice.Status = domain.InvoiceStatus(status)
	if invoice.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return nil, fmt.Errorf("failed to parse tax_rate: %w", err)
	}
	if invoice.IssueDate, err = parseTime(issueDate); err != nil {
		return nil, fmt.Errorf("failed to parse issue_date: %w", err)
	}
	if invoice.DueDate, err = parseTime(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	for _, f := range []struct {
		dst  **time.Time
		src  sql.NullString
		name string
	}{
		{&invoice.SentAt, sentAt, "sent_at"},
		{&invoice.ViewedAt, viewedAt, "viewed_at"},
		{&invoice.PaidAt, paidAt, "paid_at"},
		{&invoice.CancelledAt, cancelledAt, "cancelled_at"},
		{&invoice.LastReminderAt, lastReminderAt, "last_reminder_at"},
	} {
		if *f.dst, err = parseNullTime(f.src, f.name); err != nil {
			return nil, err
		}
	}
	if invoice.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if invoice.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return invoice, nil
}
