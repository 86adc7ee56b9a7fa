package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/repository"
)

func TestCreateInvoiceComputesTotalsAndNumbers(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "ap@acme.test", nil)
	tax := decimal.RequireFromString("8.25")

	inv, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{
		ClientID: c.ID,
		Items: []ItemInput{
			{Description: "Design", Quantity: decimal.RequireFromString("1.5"), UnitPrice: 10000},
			{Description: "Hosting", Quantity: decimal.NewFromInt(2), UnitPrice: 2500},
		},
		TaxRate:  &tax,
		Discount: 650,
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-1-2026-001", inv.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, int64(20000), inv.Subtotal)
	assert.Equal(t, int64(1650), inv.TaxAmount)
	assert.Equal(t, int64(21000), inv.Total)
	assert.Equal(t, domain.StartOfDay(baseTime).AddDate(0, 0, 30), inv.DueDate)
	requireTotalsInvariant(t, inv)
	assert.True(t, f.events.published(events.InvoiceCreated))

	second, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-1-2026-002", second.InvoiceNumber)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, int64(15000), stored.Items[0].Total)
}

func TestInvoiceNumbersAreUniqueAcrossOwners(t *testing.T) {
	f := newFixture(t)
	mine := f.client(owner, "Acme", "", nil)
	theirs := f.client(2, "Initech", "", nil)

	first, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{ClientID: mine.ID})
	require.NoError(t, err)
	other, err := f.invoices().Create(f.ctx, 2, CreateInvoiceRequest{ClientID: theirs.ID})
	require.NoError(t, err)

	assert.Equal(t, "INV-1-2026-001", first.InvoiceNumber)
	assert.Equal(t, "INV-2-2026-001", other.InvoiceNumber)

	clash := domain.NewInvoice(2, theirs.ID, nil, baseTime, baseTime)
	clash.InvoiceNumber = first.InvoiceNumber
	err = f.store.Invoices().Create(f.ctx, clash)
	assert.ErrorIs(t, err, domain.ErrConcurrency)
}

func TestCreateInvoiceRejectsForeignClient(t *testing.T) {
	f := newFixture(t)
	other := f.client(2, "Not mine", "", nil)

	_, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{ClientID: other.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateInvoiceRejectsExcessiveDiscount(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)

	_, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{
		ClientID: c.ID,
		Items:    []ItemInput{{Description: "Work", Quantity: decimal.NewFromInt(1), UnitPrice: 1000}},
		Discount: 1001,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "discount_amount", domain.FieldOf(err))
}

func TestSendRequiresBillableLines(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv, err := f.invoices().Create(f.ctx, owner, CreateInvoiceRequest{ClientID: c.ID})
	require.NoError(t, err)

	_, err = f.invoices().Send(f.ctx, owner, inv.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.InvoiceStatusDraft, f.stored(inv.ID).Status)
}

func TestSendSchedulesRemindersAndEmails(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "ap@acme.test", nil)

	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	assert.Equal(t, domain.InvoiceStatusSent, inv.Status)
	require.NotNil(t, inv.SentAt)
	assert.Len(t, f.remindersWith(inv.ID, domain.ReminderStatusScheduled), 6)
	assert.True(t, f.events.published(events.InvoiceSent))

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "ap@acme.test", f.notifier.sent[0].To)
	assert.Contains(t, f.notifier.sent[0].Subject, inv.InvoiceNumber)
}

func TestSendSurvivesEmailFailure(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "down@acme.test", nil)
	f.notifier.failTo["down@acme.test"] = true

	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))
	assert.Equal(t, domain.InvoiceStatusSent, f.stored(inv.ID).Status)
}

func TestTransitionsOutsideTableFail(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)

	draft := f.draft(c.ID, 50000, baseTime.AddDate(0, 0, 10))
	_, err := f.invoices().Transition(f.ctx, owner, draft.ID, domain.InvoiceStatusPaid)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))
	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 50000})
	require.NoError(t, err)

	_, err = f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusSent)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.InvoiceStatusPaid, f.stored(inv.ID).Status)
}

func TestCancelClearsRemindersAndReactivationIsGuarded(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	cancelled, err := f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusCancelled)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Empty(t, f.remindersWith(inv.ID, domain.ReminderStatusScheduled))

	f.settings.AllowReactivation = false
	_, err = f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusDraft)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.settings.AllowReactivation = true
	draft, err := f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, draft.Status)
	assert.Nil(t, draft.CancelledAt)
}

func TestUpdateDraft(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.draft(c.ID, 10000, baseTime.AddDate(0, 0, 10))

	items := []ItemInput{{Description: "Revised", Quantity: decimal.RequireFromString("2.5"), UnitPrice: 4000}}
	notes := "thanks"
	updated, err := f.invoices().UpdateDraft(f.ctx, owner, inv.ID, UpdateDraftRequest{Items: &items, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), updated.Total)
	assert.Equal(t, "thanks", updated.Notes)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Revised", stored.Items[0].Description)
	requireTotalsInvariant(t, stored)
}

func TestUpdateDraftRejectsSentInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, 10))

	notes := "late edit"
	_, err := f.invoices().UpdateDraft(f.ctx, owner, inv.ID, UpdateDraftRequest{Notes: &notes})
	assert.ErrorIs(t, err, domain.ErrImmutable)
}

func TestChangeDueDateReschedulesReminders(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, 10))

	newDue := baseTime.AddDate(0, 0, 40)
	_, err := f.invoices().ChangeDueDate(f.ctx, owner, inv.ID, newDue)
	require.NoError(t, err)

	scheduled := f.remindersWith(inv.ID, domain.ReminderStatusScheduled)
	require.Len(t, scheduled, 6)
	anchor := domain.StartOfDay(newDue).Add(9 * time.Hour)
	for _, r := range scheduled {
		assert.Equal(t, anchor.AddDate(0, 0, r.DaysOffset), r.ScheduledFor)
	}
	assert.Len(t, f.remindersWith(inv.ID, domain.ReminderStatusCancelled), 6)
}

func TestChangeDueDateOnOverdueInvoiceIsImmutable(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, -5))
	_, err := f.invoices().SweepOverdue(f.ctx)
	require.NoError(t, err)

	_, err = f.invoices().ChangeDueDate(f.ctx, owner, inv.ID, baseTime.AddDate(0, 0, 20))
	assert.ErrorIs(t, err, domain.ErrImmutable)
}

func TestOverdueIsDerivedOnReadAndPersistedBySweep(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	late := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, -5))
	onTime := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, 5))

	got, err := f.invoices().Get(f.ctx, owner, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, got.Status)
	assert.Equal(t, domain.InvoiceStatusSent, f.stored(late.ID).Status)

	overdue := domain.InvoiceStatusOverdue
	list, err := f.invoices().List(f.ctx, owner, InvoiceFilter{Status: &overdue})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)

	marked, err := f.invoices().SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, domain.InvoiceStatusOverdue, f.stored(late.ID).Status)
	assert.Equal(t, domain.InvoiceStatusSent, f.stored(onTime.ID).Status)

	marked, err = f.invoices().SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestDueDayIsNotOverdue(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime)

	got, err := f.invoices().Get(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, got.Status)

	f.now = domain.StartOfDay(baseTime).AddDate(0, 0, 1)
	got, err = f.invoices().Get(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, got.Status)
}

func TestOverdueDueDateIsLockedUntilReissued(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime)

	f.now = baseTime.AddDate(0, 0, 5)
	marked, err := f.invoices().SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	_, err = f.invoices().ChangeDueDate(f.ctx, owner, inv.ID, f.now.AddDate(0, 0, 14))
	assert.ErrorIs(t, err, domain.ErrImmutable)

	_, err = f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusCancelled)
	require.NoError(t, err)
	_, err = f.invoices().Transition(f.ctx, owner, inv.ID, domain.InvoiceStatusDraft)
	require.NoError(t, err)

	due := f.now.AddDate(0, 0, 14)
	_, err = f.invoices().UpdateDraft(f.ctx, owner, inv.ID, UpdateDraftRequest{DueDate: &due})
	require.NoError(t, err)
	reissued, err := f.invoices().Send(f.ctx, owner, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusSent, reissued.Status)
	assert.Equal(t, domain.StartOfDay(due), reissued.DueDate)
	assert.NotEmpty(t, f.remindersWith(inv.ID, domain.ReminderStatusScheduled))
}

func TestMarkViewed(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, 5))

	viewed, err := f.invoices().MarkViewed(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusViewed, viewed.Status)
	require.NotNil(t, viewed.ViewedAt)

	again, err := f.invoices().MarkViewed(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, viewed.Version, again.Version)
}

func TestDeleteWithPaymentsIsGuarded(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	e := f.entry(owner, c.ID, nil, 60, nil)

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{e.ID}})
	require.NoError(t, err)
	_, err = f.invoices().Send(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 1000})
	require.NoError(t, err)

	err = f.invoices().Delete(f.ctx, owner, inv.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.store.Invoices().GetByID(f.ctx, inv.ID)
	require.NoError(t, err)

	f.settings.AllowDeleteWithPayments = true
	require.NoError(t, f.invoices().Delete(f.ctx, owner, inv.ID))

	_, err = f.store.Invoices().GetByID(f.ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	payments, err := f.store.Payments().ListByInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	released, err := f.store.Entries().GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, released.IsBilled)
	assert.Nil(t, released.InvoiceID)
}

func TestDeleteDraftReleasesEntries(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	e := f.entry(owner, c.ID, nil, 30, nil)

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{e.ID}})
	require.NoError(t, err)
	require.NoError(t, f.invoices().Delete(f.ctx, owner, inv.ID))

	entries, err := f.store.Entries().List(f.ctx, repository.EntryFilter{UserID: owner, UnbilledOnly: true})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
