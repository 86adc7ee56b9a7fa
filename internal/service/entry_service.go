package service

import (
	"context"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
)

// ManualEntryRequest records finished work after the fact
type ManualEntryRequest struct {
	ClientID    int64
	ProjectID   *int64
	MilestoneID *int64
	Description string
	Start       time.Time
	Duration    time.Duration
	HourlyRate  *int64
	NonBillable bool
}

// EntryEdit changes an unbilled entry; nil fields are left alone
type EntryEdit struct {
	Description *string
	Start       *time.Time
	Duration    *time.Duration
	HourlyRate  *int64
	Billable    *bool
}

// EntryService manages finished time entries. Billed entries are immutable.
type EntryService interface {
	Add(ctx context.Context, owner int64, req ManualEntryRequest) (*domain.TimeEntry, error)
	Edit(ctx context.Context, owner, id int64, edit EntryEdit, reason string) (*domain.TimeEntry, error)
	Delete(ctx context.Context, owner, id int64, reason string) error
	List(ctx context.Context, filter repository.EntryFilter) ([]*domain.TimeEntry, error)
	History(ctx context.Context, owner, id int64) ([]*domain.EntryHistory, error)
}

type entryService struct {
	base
}

func NewEntryService(d Deps) EntryService {
	return &entryService{base: newBase(d)}
}

func (s *entryService) Add(ctx context.Context, owner int64, req ManualEntryRequest) (*domain.TimeEntry, error) {
	if req.Duration <= 0 {
		return nil, domain.Validation("duration", "duration must be positive")
	}

	var entry *domain.TimeEntry
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := ownedClient(ctx, tx, owner, req.ClientID); err != nil {
			return err
		}
		if req.ProjectID != nil {
			if err := checkProject(ctx, tx, owner, req.ClientID, *req.ProjectID); err != nil {
				return err
			}
		}
		entry = domain.NewTimeEntry(owner, req.ClientID, req.ProjectID, req.Description, req.Start)
		entry.MilestoneID = req.MilestoneID
		entry.HourlyRate = req.HourlyRate
		entry.IsBillable = !req.NonBillable
		entry.Stop(entry.StartTime.Add(req.Duration))
		return tx.Entries().Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *entryService) owned(ctx context.Context, store repository.Store, owner, id int64) (*domain.TimeEntry, error) {
	entry, err := store.Entries().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != owner || entry.IsDeleted {
		return nil, domain.NotFound("time entry", id)
	}
	return entry, nil
}

func (s *entryService) Edit(ctx context.Context, owner, id int64, edit EntryEdit, reason string) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		entry, err = s.owned(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if entry.IsLocked() {
			return domain.Immutable("time entry", "billed entries cannot be edited")
		}
		if entry.IsRunning() && (edit.Duration != nil || edit.Start != nil) {
			return domain.Validation("duration", "stop the timer before changing its times")
		}

		if edit.Description != nil {
			entry.Description = *edit.Description
		}
		if edit.HourlyRate != nil {
			entry.HourlyRate = edit.HourlyRate
		}
		if edit.Billable != nil {
			entry.IsBillable = *edit.Billable
		}
		if edit.Start != nil || edit.Duration != nil {
			start := entry.StartTime
			if edit.Start != nil {
				start = edit.Start.UTC()
			}
			duration := entry.EndTime.Sub(entry.StartTime)
			if edit.Duration != nil {
				duration = *edit.Duration
			}
			if duration <= 0 {
				return domain.Validation("duration", "duration must be positive")
			}
			entry.StartTime = start
			entry.Stop(start.Add(duration))
		}
		return tx.Entries().Update(ctx, entry, reason)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *entryService) Delete(ctx context.Context, owner, id int64, reason string) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		entry, err := s.owned(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if entry.IsLocked() {
			return domain.Immutable("time entry", "billed entries cannot be deleted")
		}
		return tx.Entries().SoftDelete(ctx, id, reason)
	})
}

func (s *entryService) List(ctx context.Context, filter repository.EntryFilter) ([]*domain.TimeEntry, error) {
	return s.Store.Entries().List(ctx, filter)
}

func (s *entryService) History(ctx context.Context, owner, id int64) ([]*domain.EntryHistory, error) {
	if _, err := s.owned(ctx, s.Store, owner, id); err != nil {
		return nil, err
	}
	return s.Store.Entries().GetHistory(ctx, id)
}

func hoursValue(minutes, rate int64) int64 {
	return money.LineTotal(money.HoursFromMinutes(minutes), rate)
}
