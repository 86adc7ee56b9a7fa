// Package memory is an in-process Store used by tests and dry runs. A single
// mutex serializes every call; WithTx holds it for the whole callback and
// restores a snapshot if the callback fails.
package memory

import (
	"context"
	"sync"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

type state struct {
	nextID     int64
	clients    map[int64]domain.Client
	projects   map[int64]domain.Project
	milestones map[int64]domain.Milestone
	entries    map[int64]domain.TimeEntry
	history    []domain.EntryHistory
	invoices   map[int64]domain.Invoice
	items      map[int64][]domain.InvoiceItem
	payments   map[int64]domain.Payment
	reminders  map[int64]domain.ReminderSchedule
	sequences  map[sequenceKey]int64
}

type sequenceKey struct {
	userID int64
	year   int
}

func newState() *state {
	return &state{
		clients:    map[int64]domain.Client{},
		projects:   map[int64]domain.Project{},
		milestones: map[int64]domain.Milestone{},
		entries:    map[int64]domain.TimeEntry{},
		invoices:   map[int64]domain.Invoice{},
		items:      map[int64][]domain.InvoiceItem{},
		payments:   map[int64]domain.Payment{},
		reminders:  map[int64]domain.ReminderSchedule{},
		sequences:  map[sequenceKey]int64{},
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.milestones {
		c.milestones[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	c.history = append(c.history, s.history...)
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]domain.InvoiceItem(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.reminders {
		c.reminders[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store is an in-memory repository.Store
type Store struct {
	mu   *sync.Mutex
	data **state
	inTx bool
}

// New returns an empty store
func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, data: &st}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) st() *state { return *s.data }

func (s *Store) Clients() repository.ClientRepository       { return clientRepo{s} }
func (s *Store) Projects() repository.ProjectRepository     { return projectRepo{s} }
func (s *Store) Milestones() repository.MilestoneRepository { return milestoneRepo{s} }
func (s *Store) Entries() repository.TimeEntryRepository    { return entryRepo{s} }
func (s *Store) Invoices() repository.InvoiceRepository     { return invoiceRepo{s} }
func (s *Store) Payments() repository.PaymentRepository     { return paymentRepo{s} }
func (s *Store) Reminders() repository.ReminderRepository   { return reminderRepo{s} }

// WithTx runs fn with the store locked and rolls back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st().clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

// Reset drops all data.
func (s *Store) Reset() {
	defer s.lock()()
	*s.data = newState()
}
