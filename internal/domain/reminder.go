package domain

import (
	"fmt"
	"sort"
	"time"
)

type ReminderType string

const (
	ReminderUpcomingDue   ReminderType = "upcoming_due"
	ReminderDueToday      ReminderType = "due_today"
	ReminderOverdueGentle ReminderType = "overdue_gentle"
	ReminderOverdueFirm   ReminderType = "overdue_firm"
	ReminderOverdueFinal  ReminderType = "overdue_final"
	ReminderOverdueUrgent ReminderType = "overdue_urgent"
)

// ParseReminderType validates a reminder type name.
func ParseReminderType(s string) (ReminderType, error) {
	t := ReminderType(s)
	switch t {
	case ReminderUpcomingDue, ReminderDueToday, ReminderOverdueGentle,
		ReminderOverdueFirm, ReminderOverdueFinal, ReminderOverdueUrgent:
		return t, nil
	}
	return "", Validation("reminder_type", fmt.Sprintf("unknown reminder type %q", s))
}

// IsOverdue is true for the escalation steps after the due date.
func (t ReminderType) IsOverdue() bool {
	switch t {
	case ReminderOverdueGentle, ReminderOverdueFirm, ReminderOverdueFinal, ReminderOverdueUrgent:
		return true
	}
	return false
}

type ReminderStatus string

const (
	ReminderStatusScheduled ReminderStatus = "scheduled"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// CadenceStep is one reminder relative to the due date.
type CadenceStep struct {
	Type       ReminderType
	DaysOffset int
}

// DefaultCadence is the standard reminder ladder.
func DefaultCadence() []CadenceStep {
	return []CadenceStep{
		{Type: ReminderUpcomingDue, DaysOffset: -3},
		{Type: ReminderDueToday, DaysOffset: 0},
		{Type: ReminderOverdueGentle, DaysOffset: 3},
		{Type: ReminderOverdueFirm, DaysOffset: 7},
		{Type: ReminderOverdueFinal, DaysOffset: 14},
		{Type: ReminderOverdueUrgent, DaysOffset: 30},
	}
}

// ReminderSchedule is one row of the reminder queue. A manual reminder is
// written directly in a terminal state.
type ReminderSchedule struct {
	ID           int64
	InvoiceID    int64
	ReminderType ReminderType
	DaysOffset   int
	ScheduledFor time.Time
	Status       ReminderStatus
	SentAt       *time.Time
	EmailID      string
	Error        string
	Manual       bool
	ClaimToken   string
	ClaimedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewReminderSchedule(invoiceID int64, step CadenceStep, scheduledFor time.Time) *ReminderSchedule {
	now := time.Now().UTC()
	return &ReminderSchedule{
		InvoiceID:    invoiceID,
		ReminderType: step.Type,
		DaysOffset:   step.DaysOffset,
		ScheduledFor: scheduledFor.UTC(),
		Status:       ReminderStatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsDue reports whether the reminder should be dispatched at now.
func (r *ReminderSchedule) IsDue(now time.Time) bool {
	return r.Status == ReminderStatusScheduled && !r.ScheduledFor.After(now)
}

// ReminderTypeFor picks the cadence step matching how far now is from the
// due date, used for manual reminders.
func ReminderTypeFor(cadence []CadenceStep, dueDate, now time.Time) CadenceStep {
	if len(cadence) == 0 {
		cadence = DefaultCadence()
	}
	cadence = append([]CadenceStep(nil), cadence...)
	sort.SliceStable(cadence, func(i, j int) bool { return cadence[i].DaysOffset < cadence[j].DaysOffset })
	days := int(StartOfDay(now).Sub(StartOfDay(dueDate)).Hours() / 24)
	best := cadence[0]
	for _, step := range cadence {
		if step.DaysOffset <= days {
			best = step
		}
	}
	return CadenceStep{Type: best.Type, DaysOffset: days}
}
