package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
)

// overdueInvoice sends an invoice five days past due, which leaves one
// caught-up reminder due immediately.
func (f *fixture) overdueInvoice(email string) *domain.Invoice {
	f.t.Helper()
	c := f.client(owner, "Client "+email, email, nil)
	inv := f.sent(c.ID, 10000, baseTime.AddDate(0, 0, -5))
	f.now = f.now.Add(time.Minute)
	return inv
}

func TestDispatchSendsDueReminders(t *testing.T) {
	f := newFixture(t)
	inv := f.overdueInvoice("ap@acme.test")

	res, err := f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Evaluated: 1, Sent: 1}, res)

	sent := f.remindersWith(inv.ID, domain.ReminderStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ReminderOverdueGentle, sent[0].ReminderType)
	assert.NotEmpty(t, sent[0].EmailID)

	stored := f.stored(inv.ID)
	assert.Equal(t, 1, stored.ReminderCount)
	assert.True(t, f.events.published(events.ReminderSent))

	msgs := f.notifier.reminders()
	require.Len(t, msgs, 1)
	assert.Equal(t, fmt.Sprintf("reminder-%d", sent[0].ID), msgs[0].IdempotencyKey)

	res, err = f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
}

func TestDispatchCancelsRemindersOfSettledInvoices(t *testing.T) {
	f := newFixture(t)
	inv := f.overdueInvoice("ap@acme.test")

	stored := f.stored(inv.ID)
	require.NoError(t, stored.TransitionTo(domain.InvoiceStatusCancelled, f.now))
	require.NoError(t, f.store.Invoices().Update(f.ctx, stored))

	res, err := f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)
	assert.Zero(t, res.Sent)
	assert.Empty(t, f.notifier.reminders())
	assert.Empty(t, f.remindersWith(inv.ID, domain.ReminderStatusSent))
}

func TestDispatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	bad := f.overdueInvoice("down@acme.test")
	good := f.overdueInvoice("ap@acme.test")
	noEmail := f.overdueInvoice("")
	f.notifier.failTo["down@acme.test"] = true

	res, err := f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Failed)

	failed := f.remindersWith(bad.ID, domain.ReminderStatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "mailbox unavailable")
	assert.Len(t, f.remindersWith(noEmail.ID, domain.ReminderStatusFailed), 1)
	assert.Len(t, f.remindersWith(good.ID, domain.ReminderStatusSent), 1)
	assert.Zero(t, f.stored(bad.ID).ReminderCount)
	assert.True(t, f.events.published(events.ReminderFailed))

	res, err = f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
}

func TestDispatchRespectsForeignLease(t *testing.T) {
	f := newFixture(t)
	inv := f.overdueInvoice("ap@acme.test")

	due := f.remindersWith(inv.ID, domain.ReminderStatusScheduled)[0]
	ok, err := f.store.Reminders().Claim(f.ctx, due.ID, "other-run", f.now, f.now.Add(-f.settings.Lease))
	require.NoError(t, err)
	require.True(t, ok)

	f.now = f.now.Add(time.Minute)
	res, err := f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, f.notifier.reminders())

	f.now = f.now.Add(f.settings.Lease)
	res, err = f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestConcurrentDispatchSendsOnce(t *testing.T) {
	f := newFixture(t)
	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test"} {
		f.overdueInvoice(email)
	}
	dispatcher := f.dispatcher()

	var wg sync.WaitGroup
	results := make([]DispatchResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := dispatcher.Dispatch(f.ctx)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, r := range results {
		sent += r.Sent
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, 3, sent)
	assert.Len(t, f.notifier.reminders(), 3)
}

func TestDispatchHonoursBatchSize(t *testing.T) {
	f := newFixture(t)
	f.settings.BatchSize = 2
	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test"} {
		f.overdueInvoice(email)
	}

	res, err := f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	res, err = f.dispatcher().Dispatch(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}
