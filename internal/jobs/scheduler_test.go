package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/service"
)

type countingDispatcher struct {
	runs atomic.Int32
	err  error
}

func (d *countingDispatcher) Dispatch(ctx context.Context) (service.DispatchResult, error) {
	d.runs.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return service.DispatchResult{}, errors.New("dispatch ran without a deadline")
	}
	return service.DispatchResult{Evaluated: 2, Sent: 2}, d.err
}

type countingSweeper struct {
	runs atomic.Int32
}

func (s *countingSweeper) SweepOverdue(ctx context.Context) (int, error) {
	s.runs.Add(1)
	return 1, nil
}

func TestRunJobs(t *testing.T) {
	d := &countingDispatcher{}
	sw := &countingSweeper{}
	s := NewScheduler(d, sw, zerolog.Nop(), Config{})

	s.RunDispatch()
	s.RunSweep()
	assert.Equal(t, int32(1), d.runs.Load())
	assert.Equal(t, int32(1), sw.runs.Load())

	d.err = errors.New("store unavailable")
	assert.NotPanics(t, s.RunDispatch)
	assert.Equal(t, int32(2), d.runs.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&countingDispatcher{}, &countingSweeper{}, zerolog.Nop(), Config{
		DispatchSchedule: "every now and then",
	})
	require.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(&countingDispatcher{}, &countingSweeper{}, zerolog.Nop(), Config{
		DispatchSchedule: "*/15 * * * *",
		SweepSchedule:    "@hourly",
	})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}

func TestEmptyScheduleDisablesJob(t *testing.T) {
	s := NewScheduler(&countingDispatcher{}, &countingSweeper{}, zerolog.Nop(), Config{SweepSchedule: "@daily"})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	<-s.Stop().Done()
}
