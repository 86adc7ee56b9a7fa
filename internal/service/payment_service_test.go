package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
)

func TestRecordFullPaymentSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	receipt, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 50000, Method: domain.PaymentMethodCard, Reference: "ch_1"})
	require.NoError(t, err)
	assert.False(t, receipt.Capped)
	assert.Equal(t, domain.InvoiceStatusPaid, receipt.Invoice.Status)
	assert.Zero(t, receipt.Invoice.BalanceDue())

	stored := f.stored(inv.ID)
	assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	requireTotalsInvariant(t, stored)
	assert.Empty(t, f.remindersWith(inv.ID, domain.ReminderStatusScheduled))

	assert.True(t, f.events.published(events.PaymentRecorded))
	assert.True(t, f.events.published(events.InvoicePaid))
}

func TestRecordPartialPayment(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	receipt, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodBankTransfer, receipt.Payment.Method)
	assert.Equal(t, domain.InvoiceStatusSent, receipt.Invoice.Status)
	assert.Equal(t, int64(30000), receipt.Invoice.BalanceDue())
	assert.Len(t, f.remindersWith(inv.ID, domain.ReminderStatusScheduled), 6)
	assert.False(t, f.events.published(events.InvoicePaid))

	payments, err := f.payments().List(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(20000), payments[0].Amount)
}

func TestRecordPaymentOnOverdueInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, -10))
	_, err := f.invoices().SweepOverdue(f.ctx)
	require.NoError(t, err)

	receipt, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 50000})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, receipt.Invoice.Status)
}

func TestRecordPaymentRejections(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	draft := f.draft(c.ID, 50000, baseTime.AddDate(0, 0, 10))
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	_, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: -100})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.payments().Record(f.ctx, owner, draft.ID, RecordPaymentRequest{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.payments().Record(f.ctx, 2, inv.ID, RecordPaymentRequest{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 50000})
	require.NoError(t, err)
	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	payments, err := f.payments().List(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestOverpaymentPolicy(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		f := newFixture(t)
		c := f.client(owner, "Acme", "", nil)
		inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

		_, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 60000})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, "amount", domain.FieldOf(err))
		assert.Zero(t, f.stored(inv.ID).AmountPaid)
	})

	t.Run("cap", func(t *testing.T) {
		f := newFixture(t)
		f.settings.Overpayment = OverpaymentCap
		c := f.client(owner, "Acme", "", nil)
		inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

		receipt, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 60000})
		require.NoError(t, err)
		assert.True(t, receipt.Capped)
		assert.Equal(t, int64(50000), receipt.Payment.Amount)
		assert.Equal(t, domain.InvoiceStatusPaid, receipt.Invoice.Status)
		requireTotalsInvariant(t, f.stored(inv.ID))
	})
}

func TestConcurrentPaymentsBothApply(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))
	svc := f.payments()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 25000})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	stored := f.stored(inv.ID)
	assert.Equal(t, int64(50000), stored.AmountPaid)
	assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)

	payments, err := svc.List(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPaymentRetriesConcurrencyConflicts(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 50000, baseTime.AddDate(0, 0, 10))

	remaining := 2
	d := f.deps()
	d.Store = conflictStore{Store: f.store, remaining: &remaining}
	receipt, err := NewPaymentService(d).Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 10000})
	require.NoError(t, err)
	assert.Equal(t, int64(40000), receipt.Invoice.BalanceDue())
	assert.Zero(t, remaining)

	remaining = 3
	_, err = NewPaymentService(d).Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 10000})
	assert.ErrorIs(t, err, domain.ErrConcurrency)

	payments, err := f.payments().List(f.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, int64(10000), f.stored(inv.ID).AmountPaid)
}
