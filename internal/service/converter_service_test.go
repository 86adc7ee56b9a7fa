package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
)

func TestFromTimeEntriesGroupsByProjectAtHighestRate(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	p := f.project(c.ID, "Website", cents(10000))
	a := f.entry(owner, c.ID, &p.ID, 90, nil)
	b := f.entry(owner, c.ID, &p.ID, 30, cents(12000))

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{
		ClientID:       c.ID,
		EntryIDs:       []int64{a.ID, b.ID},
		GroupByProject: true,
	})
	require.NoError(t, err)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Website", stored.Items[0].Description)
	assert.Equal(t, "2.00", stored.Items[0].Quantity.StringFixed(2))
	assert.Equal(t, int64(12000), stored.Items[0].UnitPrice)
	assert.Equal(t, int64(24000), stored.Total)
	requireTotalsInvariant(t, stored)
	assert.True(t, f.events.published(events.InvoiceCreated))
}

func TestFromTimeEntriesOneLinePerEntry(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	p := f.project(c.ID, "Website", cents(10000))
	a := f.entry(owner, c.ID, &p.ID, 90, nil)
	b := f.entry(owner, c.ID, &p.ID, 30, cents(12000))

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{a.ID, b.ID}})
	require.NoError(t, err)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, int64(15000), stored.Items[0].Total)
	assert.Equal(t, int64(6000), stored.Items[1].Total)
	require.NotNil(t, stored.Items[0].TimeEntryID)
	assert.Equal(t, a.ID, *stored.Items[0].TimeEntryID)
	assert.Equal(t, int64(21000), stored.Total)

	for _, id := range []int64{a.ID, b.ID} {
		e, err := f.store.Entries().GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.True(t, e.IsBilled)
		require.NotNil(t, e.InvoiceID)
		assert.Equal(t, inv.ID, *e.InvoiceID)
	}
}

func TestFromTimeEntriesSkipsIneligibleEntries(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	p := f.project(c.ID, "Website", cents(10000))

	good := f.entry(owner, c.ID, &p.ID, 60, nil)
	unpriced := f.entry(owner, c.ID, nil, 60, nil)
	foreign := f.entry(2, c.ID, &p.ID, 60, nil)

	nonBillable := domain.NewTimeEntry(owner, c.ID, &p.ID, "internal", f.now.Add(-5*time.Hour))
	nonBillable.IsBillable = false
	nonBillable.Stop(f.now.Add(-4 * time.Hour))
	require.NoError(t, f.store.Entries().Create(f.ctx, nonBillable))

	deleted := f.entry(owner, c.ID, &p.ID, 60, nil)
	require.NoError(t, f.store.Entries().SoftDelete(f.ctx, deleted.ID, "duplicate"))

	billed := f.entry(owner, c.ID, &p.ID, 60, nil)
	require.NoError(t, f.store.Entries().MarkBilled(f.ctx, []int64{billed.ID}, 999))

	running := domain.NewTimeEntry(owner, c.ID, &p.ID, "still going", f.now.Add(-time.Hour))
	require.NoError(t, f.store.Entries().Create(f.ctx, running))

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{
		ClientID: c.ID,
		EntryIDs: []int64{good.ID, unpriced.ID, foreign.ID, nonBillable.ID, deleted.ID, billed.ID, running.ID, 424242, good.ID},
	})
	require.NoError(t, err)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(10000), stored.Total)

	left, err := f.store.Entries().GetByID(f.ctx, unpriced.ID)
	require.NoError(t, err)
	assert.False(t, left.IsBilled)
}

func TestFromTimeEntriesSkipsZeroMinuteEntries(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	worked := f.entry(owner, c.ID, nil, 90, nil)
	blip := f.entry(owner, c.ID, nil, 0, nil)

	for _, grouped := range []bool{false, true} {
		_, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{
			ClientID:       c.ID,
			EntryIDs:       []int64{blip.ID},
			GroupByProject: grouped,
		})
		assert.ErrorIs(t, err, domain.ErrNoBillableEntries)
	}

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{worked.ID, blip.ID}})
	require.NoError(t, err)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "1.50", stored.Items[0].Quantity.StringFixed(2))
	assert.Equal(t, int64(15000), stored.Total)

	left, err := f.store.Entries().GetByID(f.ctx, blip.ID)
	require.NoError(t, err)
	assert.False(t, left.IsBilled)
	assert.Nil(t, left.InvoiceID)
}

func TestFromTimeEntriesNoBillableEntries(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	unpriced := f.entry(owner, c.ID, nil, 60, nil)

	_, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{unpriced.ID}})
	assert.ErrorIs(t, err, domain.ErrNoBillableEntries)
	assert.ErrorIs(t, err, domain.ErrValidation)

	invoices, err := f.invoices().List(f.ctx, owner, InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestFromTimeEntriesGeneralWorkBucket(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(9000))
	p := f.project(c.ID, "Website", nil)
	loose := f.entry(owner, c.ID, nil, 45, nil)
	scoped := f.entry(owner, c.ID, &p.ID, 15, nil)

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{
		ClientID:       c.ID,
		EntryIDs:       []int64{loose.ID, scoped.ID},
		GroupByProject: true,
	})
	require.NoError(t, err)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, GeneralWork, stored.Items[0].Description)
	assert.Equal(t, "0.75", stored.Items[0].Quantity.StringFixed(2))
	assert.Equal(t, int64(6750), stored.Items[0].Total)
	assert.Equal(t, "Website", stored.Items[1].Description)
	assert.Equal(t, int64(2250), stored.Items[1].Total)
}

func TestFromTimeEntriesProjectFilter(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	web := f.project(c.ID, "Website", nil)
	app := f.project(c.ID, "App", nil)
	a := f.entry(owner, c.ID, &web.ID, 60, nil)
	b := f.entry(owner, c.ID, &app.ID, 60, nil)

	inv, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{
		ClientID:  c.ID,
		ProjectID: &web.ID,
		EntryIDs:  []int64{a.ID, b.ID},
	})
	require.NoError(t, err)
	require.NotNil(t, inv.ProjectID)
	assert.Equal(t, web.ID, *inv.ProjectID)
	assert.Len(t, f.stored(inv.ID).Items, 1)
}

func TestFromTimeEntriesCannotRebill(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	e := f.entry(owner, c.ID, nil, 60, nil)

	_, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{e.ID}})
	require.NoError(t, err)
	_, err = f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{e.ID}})
	assert.ErrorIs(t, err, domain.ErrNoBillableEntries)
}

func TestFromMilestones(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	p := f.project(c.ID, "Website", nil)

	done := domain.NewMilestone(owner, p.ID, "Design phase", 250000)
	done.Status = domain.MilestoneStatusCompleted
	require.NoError(t, f.store.Milestones().Create(f.ctx, done))
	pending := domain.NewMilestone(owner, p.ID, "Build phase", 500000)
	require.NoError(t, f.store.Milestones().Create(f.ctx, pending))

	inv, err := f.converter().FromMilestones(f.ctx, owner, MilestoneInvoiceRequest{
		ProjectID:    p.ID,
		MilestoneIDs: []int64{done.ID, pending.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, inv.ClientID)
	assert.Equal(t, int64(250000), inv.Total)

	stored := f.stored(inv.ID)
	require.Len(t, stored.Items, 1)
	require.NotNil(t, stored.Items[0].MilestoneID)
	assert.Equal(t, done.ID, *stored.Items[0].MilestoneID)

	m, err := f.store.Milestones().GetByID(f.ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusInvoiced, m.Status)

	_, err = f.converter().FromMilestones(f.ctx, owner, MilestoneInvoiceRequest{ProjectID: p.ID, MilestoneIDs: []int64{done.ID}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "milestone_ids", domain.FieldOf(err))
}
