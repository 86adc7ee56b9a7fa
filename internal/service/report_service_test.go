package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceivables(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	unpricedClient := f.client(owner, "Pro bono", "", nil)

	f.sent(c.ID, 10000, baseTime.AddDate(0, 0, 5))
	late := f.sent(c.ID, 20000, baseTime.AddDate(0, 0, -40))
	_, err := f.payments().Record(f.ctx, owner, late.ID, RecordPaymentRequest{Amount: 5000})
	require.NoError(t, err)
	f.draft(c.ID, 3000, baseTime.AddDate(0, 0, 30))
	paid := f.sent(c.ID, 7000, baseTime.AddDate(0, 0, 5))
	_, err = f.payments().Record(f.ctx, owner, paid.ID, RecordPaymentRequest{Amount: 7000})
	require.NoError(t, err)

	f.entry(owner, c.ID, nil, 30, nil)
	f.entry(owner, unpricedClient.ID, nil, 15, nil)

	r, err := f.reports().Receivables(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), r.Outstanding)
	assert.Equal(t, int64(15000), r.Overdue)
	assert.Equal(t, 2, r.OpenInvoices)
	assert.Equal(t, 1, r.OverdueInvoices)
	assert.Equal(t, int64(10000), r.Aging[AgingCurrent])
	assert.Equal(t, int64(15000), r.Aging[Aging31To60])
	assert.Equal(t, int64(3000), r.Drafts)
	assert.Equal(t, int64(5000), r.UnbilledValue)
	assert.Equal(t, int64(30), r.UnbilledMinutes)
	assert.Equal(t, int64(15), r.UnpricedMinutes)
}

func TestAgingBucketEdges(t *testing.T) {
	assert.Equal(t, AgingCurrent, agingBucket(0))
	assert.Equal(t, Aging1To30, agingBucket(1))
	assert.Equal(t, Aging1To30, agingBucket(30))
	assert.Equal(t, Aging31To60, agingBucket(31))
	assert.Equal(t, Aging61To90, agingBucket(90))
	assert.Equal(t, AgingOver90, agingBucket(91))
}

func TestRevenueByMonth(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	inv := f.sent(c.ID, 30000, baseTime.AddDate(0, 0, 30))

	_, err := f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 10000})
	require.NoError(t, err)
	f.now = baseTime.AddDate(0, 1, 0)
	_, err = f.payments().Record(f.ctx, owner, inv.ID, RecordPaymentRequest{Amount: 20000})
	require.NoError(t, err)

	revenue, err := f.reports().RevenueByMonth(f.ctx, owner, 2026)
	require.NoError(t, err)
	assert.Equal(t, map[time.Month]int64{time.March: 10000, time.April: 20000}, revenue)

	revenue, err = f.reports().RevenueByMonth(f.ctx, owner, 2025)
	require.NoError(t, err)
	assert.Empty(t, revenue)
}
