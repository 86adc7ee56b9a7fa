package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
)

func TestTimerLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", cents(10000))
	timer := f.timer()

	running, err := timer.Running(f.ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, running)

	entry, err := timer.Start(f.ctx, owner, c.ID, nil, "API work")
	require.NoError(t, err)
	assert.True(t, entry.IsRunning())
	assert.Equal(t, baseTime, entry.StartTime)

	_, err = timer.Start(f.ctx, owner, c.ID, nil, "second")
	assert.ErrorIs(t, err, ErrTimerAlreadyRunning)
	assert.ErrorIs(t, err, domain.ErrConflict)

	f.now = baseTime.Add(90 * time.Minute)
	value, err := timer.AccruedValue(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), value)

	stopped, err := timer.Stop(f.ctx, owner)
	require.NoError(t, err)
	assert.False(t, stopped.IsRunning())
	assert.Equal(t, int64(90), stopped.DurationMinutes)

	_, err = timer.Stop(f.ctx, owner)
	assert.ErrorIs(t, err, ErrNoActiveTimer)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTimerAccruedValueWithoutRate(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	timer := f.timer()

	_, err := timer.AccruedValue(f.ctx, owner)
	assert.ErrorIs(t, err, ErrNoActiveTimer)

	_, err = timer.Start(f.ctx, owner, c.ID, nil, "")
	require.NoError(t, err)
	f.now = baseTime.Add(time.Hour)
	value, err := timer.AccruedValue(f.ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestTimerDiscard(t *testing.T) {
	f := newFixture(t)
	c := f.client(owner, "Acme", "", nil)
	timer := f.timer()

	entry, err := timer.Start(f.ctx, owner, c.ID, nil, "oops")
	require.NoError(t, err)
	require.NoError(t, timer.Discard(f.ctx, owner))

	running, err := timer.Running(f.ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, running)

	stored, err := f.store.Entries().GetByID(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)

	assert.ErrorIs(t, timer.Discard(f.ctx, owner), ErrNoActiveTimer)
}

func TestTimerStartChecksClient(t *testing.T) {
	f := newFixture(t)
	archived := f.client(owner, "Old", "", nil)
	require.NoError(t, f.store.Clients().Archive(f.ctx, archived.ID))
	foreign := f.client(2, "Theirs", "", nil)

	_, err := f.timer().Start(f.ctx, owner, archived.ID, nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.timer().Start(f.ctx, owner, foreign.ID, nil, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
