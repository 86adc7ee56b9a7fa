package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

var (
	ErrTimerAlreadyRunning = &domain.Error{Kind: domain.ErrConflict, Message: "timer is already running"}
	ErrNoActiveTimer       = &domain.Error{Kind: domain.ErrNotFound, Message: "no active timer"}
)

// TimerService runs the live timer. A running timer is a time entry with no
// end time; the database allows one per owner.
type TimerService interface {
	// Running returns the running entry, or nil when idle
	Running(ctx context.Context, owner int64) (*domain.TimeEntry, error)

	// Start opens a running entry for a client
	Start(ctx context.Context, owner, clientID int64, projectID *int64, description string) (*domain.TimeEntry, error)

	// Stop closes the running entry and returns it
	Stop(ctx context.Context, owner int64) (*domain.TimeEntry, error)

	// Discard deletes the running entry
	Discard(ctx context.Context, owner int64) error

	// AccruedValue is the elapsed time of the running entry priced at its
	// resolved rate, in cents. Zero when no rate applies.
	AccruedValue(ctx context.Context, owner int64) (int64, error)
}

type timerService struct {
	base
}

// NewTimerService creates a new timer service
func NewTimerService(d Deps) TimerService {
	return &timerService{base: newBase(d)}
}

func (s *timerService) Running(ctx context.Context, owner int64) (*domain.TimeEntry, error) {
	return s.Store.Entries().GetRunning(ctx, owner)
}

func (s *timerService) Start(ctx context.Context, owner, clientID int64, projectID *int64, description string) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		client, err := ownedClient(ctx, tx, owner, clientID)
		if err != nil {
			return err
		}
		if client.IsArchived {
			return domain.Validation("client_id", "client is archived")
		}
		if projectID != nil {
			if err := checkProject(ctx, tx, owner, clientID, *projectID); err != nil {
				return err
			}
		}

		running, err := tx.Entries().GetRunning(ctx, owner)
		if err != nil {
			return err
		}
		if running != nil {
			return ErrTimerAlreadyRunning
		}

		entry = domain.NewTimeEntry(owner, clientID, projectID, description, s.now())
		return tx.Entries().Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *timerService) Stop(ctx context.Context, owner int64) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		entry, err = tx.Entries().GetRunning(ctx, owner)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrNoActiveTimer
		}
		entry.Stop(s.now())
		return tx.Entries().Update(ctx, entry, "timer stopped")
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *timerService) Discard(ctx context.Context, owner int64) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		entry, err := tx.Entries().GetRunning(ctx, owner)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrNoActiveTimer
		}
		return tx.Entries().SoftDelete(ctx, entry.ID, "timer discarded")
	})
}

func (s *timerService) AccruedValue(ctx context.Context, owner int64) (int64, error) {
	entry, err := s.Running(ctx, owner)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, ErrNoActiveTimer
	}
	rate, err := resolveEntryRate(ctx, s.Store, entry)
	if err != nil || rate == nil {
		return 0, err
	}
	minutes := int64(s.now().Sub(entry.StartTime) / time.Minute)
	return hoursValue(minutes, *rate), nil
}

// resolveEntryRate loads the entry's project and client to resolve its rate
func resolveEntryRate(ctx context.Context, store repository.Store, entry *domain.TimeEntry) (*int64, error) {
	var project *domain.Project
	if entry.ProjectID != nil {
		p, err := store.Projects().GetByID(ctx, *entry.ProjectID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		project = p
	}
	client, err := store.Clients().GetByID(ctx, entry.ClientID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return domain.ResolveRate(entry, project, client), nil
}
