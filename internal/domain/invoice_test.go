package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

func newDraft(t *testing.T, total int64) *Invoice {
	t.Helper()
	inv := NewInvoice(1, 1, nil, day, day.AddDate(0, 0, 30))
	require.NoError(t, inv.SetItems([]*InvoiceItem{NewInvoiceItem("Work", decimal.NewFromInt(1), total)}))
	return inv
}

func TestTransitionTable(t *testing.T) {
	allowed := map[InvoiceStatus][]InvoiceStatus{
		InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
		InvoiceStatusSent:      {InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
		InvoiceStatusViewed:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
		InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled},
		InvoiceStatusPaid:      nil,
		InvoiceStatusCancelled: {InvoiceStatusDraft},
	}
	all := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled}
	for from, targets := range allowed {
		for _, to := range all {
			assert.Equal(t, contains(targets, to), CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func contains(list []InvoiceStatus, s InvoiceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestSendRequiresItems(t *testing.T) {
	inv := NewInvoice(1, 1, nil, day, day)
	err := inv.TransitionTo(InvoiceStatusSent, day)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
}

func TestItemsLockedAfterSend(t *testing.T) {
	inv := newDraft(t, 1000)
	require.NoError(t, inv.TransitionTo(InvoiceStatusSent, day))

	err := inv.SetItems(nil)
	assert.ErrorIs(t, err, ErrImmutable)
	err = inv.SetAmounts(decimal.NewFromInt(5), 0)
	assert.ErrorIs(t, err, ErrImmutable)
	assert.Len(t, inv.Items, 1)
}

func TestSetAmountsValidation(t *testing.T) {
	inv := newDraft(t, 1000)
	assert.ErrorIs(t, inv.SetAmounts(decimal.NewFromInt(-1), 0), ErrValidation)
	assert.ErrorIs(t, inv.SetAmounts(decimal.NewFromInt(101), 0), ErrValidation)
	assert.ErrorIs(t, inv.SetAmounts(decimal.Zero, -5), ErrValidation)
	assert.ErrorIs(t, inv.SetAmounts(decimal.Zero, 1001), ErrValidation)

	require.NoError(t, inv.SetAmounts(decimal.NewFromInt(10), 1100))
	assert.Zero(t, inv.Total)
}

func TestApplyPayment(t *testing.T) {
	inv := newDraft(t, 1000)
	_, err := inv.ApplyPayment(100, day)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, inv.TransitionTo(InvoiceStatusSent, day))
	paid, err := inv.ApplyPayment(400, day)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, int64(600), inv.BalanceDue())

	_, err = inv.ApplyPayment(601, day)
	assert.ErrorIs(t, err, ErrValidation)

	paid, err = inv.ApplyPayment(600, day)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	require.NoError(t, inv.Validate())
}

func TestDeriveStatus(t *testing.T) {
	inv := newDraft(t, 1000)
	require.NoError(t, inv.TransitionTo(InvoiceStatusSent, day))
	due := inv.DueDate

	assert.Equal(t, InvoiceStatusSent, DeriveStatus(inv, due.Add(23*time.Hour)))
	assert.Equal(t, InvoiceStatusOverdue, DeriveStatus(inv, due.AddDate(0, 0, 1)))
	assert.Equal(t, 3, inv.DaysOverdue(due.AddDate(0, 0, 3).Add(time.Hour)))
	assert.Zero(t, inv.DaysOverdue(due))

	inv.Status = InvoiceStatusPaid
	assert.Equal(t, InvoiceStatusPaid, DeriveStatus(inv, due.AddDate(0, 0, 40)))
}

func TestSetDueDate(t *testing.T) {
	inv := newDraft(t, 1000)
	assert.ErrorIs(t, inv.SetDueDate(day.AddDate(0, 0, -1)), ErrValidation)
	require.NoError(t, inv.SetDueDate(day.AddDate(0, 0, 10)))
	assert.Equal(t, StartOfDay(day).AddDate(0, 0, 10), inv.DueDate)

	inv.Status = InvoiceStatusOverdue
	assert.ErrorIs(t, inv.SetDueDate(day.AddDate(0, 0, 20)), ErrImmutable)
}

func TestReminderTypeFor(t *testing.T) {
	due := StartOfDay(day)
	cadence := DefaultCadence()

	assert.Equal(t, ReminderUpcomingDue, ReminderTypeFor(cadence, due, due.AddDate(0, 0, -10)).Type)
	assert.Equal(t, ReminderDueToday, ReminderTypeFor(cadence, due, due.Add(5*time.Hour)).Type)
	assert.Equal(t, ReminderOverdueFirm, ReminderTypeFor(cadence, due, due.AddDate(0, 0, 8)).Type)
	step := ReminderTypeFor(nil, due, due.AddDate(0, 0, 45))
	assert.Equal(t, ReminderOverdueUrgent, step.Type)
	assert.Equal(t, 45, step.DaysOffset)
}

func TestReminderTypeForUnsortedCadence(t *testing.T) {
	due := StartOfDay(day)
	cadence := []CadenceStep{
		{Type: ReminderOverdueFirm, DaysOffset: 7},
		{Type: ReminderUpcomingDue, DaysOffset: -3},
		{Type: ReminderOverdueGentle, DaysOffset: 3},
		{Type: ReminderDueToday, DaysOffset: 0},
	}

	assert.Equal(t, ReminderOverdueGentle, ReminderTypeFor(cadence, due, due.AddDate(0, 0, 4)).Type)
	assert.Equal(t, ReminderOverdueFirm, ReminderTypeFor(cadence, due, due.AddDate(0, 0, 9)).Type)
	assert.Equal(t, ReminderUpcomingDue, ReminderTypeFor(cadence, due, due.AddDate(0, 0, -10)).Type)
	assert.Equal(t, ReminderOverdueFirm, cadence[0].Type)
}

func TestResolveRate(t *testing.T) {
	entryRate, projectRate, clientRate := int64(300), int64(200), int64(100)
	entry := &TimeEntry{HourlyRate: &entryRate}
	project := &Project{HourlyRate: &projectRate}
	client := &Client{HourlyRate: &clientRate}

	assert.Equal(t, entryRate, *ResolveRate(entry, project, client))
	assert.Equal(t, projectRate, *ResolveRate(&TimeEntry{}, project, client))
	assert.Equal(t, clientRate, *ResolveRate(&TimeEntry{}, &Project{}, client))
	assert.Equal(t, clientRate, *ResolveRate(&TimeEntry{}, nil, client))
	assert.Nil(t, ResolveRate(&TimeEntry{}, nil, &Client{}))
}

func TestErrorKinds(t *testing.T) {
	err := Validation("amount", "must be positive")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, ErrValidation, KindOf(err))
	assert.Equal(t, "amount", FieldOf(err))

	cause := errors.New("smtp down")
	dep := Dependency("send reminder", cause)
	assert.ErrorIs(t, dep, ErrDependency)
	assert.ErrorIs(t, dep, cause)
	assert.Nil(t, KindOf(cause))

	assert.ErrorIs(t, ErrNoBillableEntries, ErrValidation)
}

func TestFormatInvoiceNumber(t *testing.T) {
	assert.Equal(t, "INV-1-2026-007", FormatInvoiceNumber("INV", 1, 2026, 7))
	assert.Equal(t, "INV-1-2026-1234", FormatInvoiceNumber("INV", 1, 2026, 1234))
	assert.NotEqual(t, FormatInvoiceNumber("INV", 1, 2026, 1), FormatInvoiceNumber("INV", 2, 2026, 1))
}
