package repository

import (
	"context"
	"fmt"

	"github.com/andy/billsink/internal/db"
)

// SQLStore is the SQLite implementation of Store
type SQLStore struct {
	db *db.DB
	q  db.Querier
	tx bool
}

// NewSQLStore creates a store over an open database
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database, q: database}
}

func (s *SQLStore) Clients() ClientRepository       { return NewClientRepo(s.q) }
func (s *SQLStore) Projects() ProjectRepository     { return NewProjectRepo(s.q) }
func (s *SQLStore) Milestones() MilestoneRepository { return NewMilestoneRepo(s.q) }
func (s *SQLStore) Entries() TimeEntryRepository    { return NewEntryRepo(s.q) }
func (s *SQLStore) Invoices() InvoiceRepository     { return NewInvoiceRepo(s.q) }
func (s *SQLStore) Payments() PaymentRepository     { return NewPaymentRepo(s.q) }
func (s *SQLStore) Reminders() ReminderRepository   { return NewReminderRepo(s.q) }

// WithTx runs fn inside one transaction. Nested calls join the outer one.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError("commit transaction", err)
	}
	return nil
}

// Reset deletes every row of the data tables.
func (s *SQLStore) Reset(ctx context.Context, tables []string) error {
	return s.WithTx(ctx, func(tx Store) error {
		q := tx.(*SQLStore).q
		for _, table := range tables {
			if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// ReleaseAllBilled unbills every time entry and milestone, ahead of a reset
// of the billing tables.
func (s *SQLStore) ReleaseAllBilled(ctx context.Context) error {
	return s.WithTx(ctx, func(tx Store) error {
		q := tx.(*SQLStore).q
		if _, err := q.ExecContext(ctx, `UPDATE time_entries SET is_billed = 0, invoice_id = NULL WHERE is_billed = 1 OR invoice_id IS NOT NULL`); err != nil {
			return fmt.Errorf("failed to unbill time entries: %w", err)
		}
		if _, err := q.ExecContext(ctx, `UPDATE milestones SET status = 'completed', invoice_id = NULL WHERE status = 'invoiced'`); err != nil {
			return fmt.Errorf("failed to release milestones: %w", err)
		}
		return nil
	})
}
