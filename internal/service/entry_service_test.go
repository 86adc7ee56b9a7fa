package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

func TestAddManualEntry(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	start := baseTime.Add(-3 * time.Hour)

	entry, err := f.entryService().Add(f.ctx, owner, ManualEntryRequest{
		ClientID:    c.ID,
		Description: "Code review",
		Start:       start,
		Duration:    45 * time.Minute,
		HourlyRate:  cents(9000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(45), entry.DurationMinutes)
	assert.True(t, entry.IsBillable)
	require.NotNil(t, entry.EndTime)
	assert.Equal(t, start.Add(45*time.Minute), *entry.EndTime)

	_, err = f.entryService().Add(f.ctx, owner, ManualEntryRequest{ClientID: c.ID, Start: start})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEditEntryRecordsHistory(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	e := f.entry(owner, c.ID, nil, 30, nil)

	desc := "Refactoring"
	duration := time.Hour
	edited, err := f.entryService().Edit(f.ctx, owner, e.ID, EntryEdit{Description: &desc, Duration: &duration}, "forgot to stop")
	require.NoError(t, err)
	assert.Equal(t, int64(60), edited.DurationMinutes)
	assert.Equal(t, "Refactoring", edited.Description)

	history, err := f.entryService().History(f.ctx, owner, e.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	for _, h := range history {
		assert.Equal(t, "forgot to stop", h.ChangeReason)
	}

	_, err = f.entryService().History(f.ctx, 2, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBilledEntriesAreImmutable(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	e := f.entry(owner, c.ID, nil, 60, nil)
	_, err := f.converter().FromTimeEntries(f.ctx, owner, TimeInvoiceRequest{ClientID: c.ID, EntryIDs: []int64{e.ID}})
	require.NoError(t, err)

	desc := "changed"
	_, err = f.entryService().Edit(f.ctx, owner, e.ID, EntryEdit{Description: &desc}, "")
	assert.ErrorIs(t, err, domain.ErrImmutable)
	assert.ErrorIs(t, f.entryService().Delete(f.ctx, owner, e.ID, ""), domain.ErrImmutable)
}

func TestDeleteEntry(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	keep := f.entry(owner, c.ID, nil, 30, nil)
	drop := f.entry(owner, c.ID, nil, 30, nil)

	require.NoError(t, f.entryService().Delete(f.ctx, owner, drop.ID, "duplicate"))

	entries, err := f.entryService().List(f.ctx, repository.EntryFilter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, keep.ID, entries[0].ID)

	assert.ErrorIs(t, f.entryService().Delete(f.ctx, owner, drop.ID, ""), domain.ErrNotFound)
}
