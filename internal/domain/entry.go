package domain

import (
	"time"
)

type TimeEntry struct {
	ID              int64
	UserID          int64
	ClientID        int64
	ProjectID       *int64
	MilestoneID     *int64
	Description     string
	StartTime       time.Time
	EndTime         *time.Time // nil while running
	DurationMinutes int64
	HourlyRate      *int64 // explicit override in cents
	IsBillable      bool
	IsBilled        bool
	IsDeleted       bool   // soft delete
	InvoiceID       *int64 // set together with IsBilled
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTimeEntry creates a running time entry starting at start
func NewTimeEntry(userID, clientID int64, projectID *int64, description string, start time.Time) *TimeEntry {
	now := time.Now().UTC()
	return &TimeEntry{
		UserID:      userID,
		ClientID:    clientID,
		ProjectID:   projectID,
		Description: description,
		StartTime:   start.UTC(),
		IsBillable:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Duration returns the duration of the entry
func (e *TimeEntry) Duration() time.Duration {
	if e.EndTime == nil {
		return time.Since(e.StartTime)
	}
	return e.EndTime.Sub(e.StartTime)
}

// IsRunning returns true if the entry has no end time
func (e *TimeEntry) IsRunning() bool {
	return e.EndTime == nil
}

// IsLocked returns true once the entry has been consumed by an invoice
func (e *TimeEntry) IsLocked() bool {
	return e.IsBilled || e.InvoiceID != nil
}

// Stop sets the end time and records whole minutes worked
func (e *TimeEntry) Stop(endTime time.Time) {
	end := endTime.UTC()
	e.EndTime = &end
	e.DurationMinutes = int64(end.Sub(e.StartTime).Round(time.Minute) / time.Minute)
	e.UpdatedAt = time.Now().UTC()
}

// MarkBilled locks the entry to an invoice
func (e *TimeEntry) MarkBilled(invoiceID int64) {
	e.IsBilled = true
	e.InvoiceID = &invoiceID
	e.UpdatedAt = time.Now().UTC()
}

// Validate returns an error if the entry is invalid
func (e *TimeEntry) Validate() error {
	if e.UserID <= 0 {
		return Validation("user_id", "owner is required")
	}
	if e.ClientID <= 0 {
		return Validation("client_id", "client is required")
	}
	if e.HourlyRate != nil && *e.HourlyRate < 0 {
		return Validation("hourly_rate", "hourly rate cannot be negative")
	}
	if e.StartTime.IsZero() {
		return Validation("start_time", "start time is required")
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return Validation("end_time", "end time must be after start time")
	}
	if e.DurationMinutes < 0 {
		return Validation("duration_minutes", "duration cannot be negative")
	}
	return nil
}
