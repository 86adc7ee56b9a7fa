// Package jobs runs the periodic billing work of `billsink serve`: reminder
// dispatch and the overdue sweep.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/andy/billsink/internal/service"
)

// Config holds the cron expressions of each job
type Config struct {
	DispatchSchedule string
	SweepSchedule    string
	// Timeout bounds one run of a job
	Timeout time.Duration
}

// Sweeper persists overdue status
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher service.ReminderDispatcher
	sweeper    Sweeper
	logger     zerolog.Logger
	config     Config
}

// NewScheduler creates a new scheduler instance. A job still running when
// its next tick fires is skipped for that tick.
func NewScheduler(dispatcher service.ReminderDispatcher, sweeper Sweeper, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	cronLogger := cron.PrintfLogger(&logger)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		logger:     logger,
		config:     cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. An invalid
// schedule is an error; an empty one disables its job.
func (s *Scheduler) Start() error {
	if s.config.DispatchSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.DispatchSchedule, s.RunDispatch); err != nil {
			return fmt.Errorf("failed to schedule reminder dispatch: %w", err)
		}
		s.logger.Info().Str("schedule", s.config.DispatchSchedule).Msg("scheduled reminder dispatch job")
	}

	if s.config.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.SweepSchedule, s.RunSweep); err != nil {
			return fmt.Errorf("failed to schedule overdue sweep: %w", err)
		}
		s.logger.Info().Str("schedule", s.config.SweepSchedule).Msg("scheduled overdue sweep job")
	}

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler. The returned context is done
// once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunDispatch runs one reminder dispatch pass
func (s *Scheduler) RunDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	result, err := s.dispatcher.Dispatch(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reminder dispatch failed")
		return
	}
	if result.Evaluated == 0 {
		return
	}
	s.logger.Info().
		Int("evaluated", result.Evaluated).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("cancelled", result.Cancelled).
		Msg("reminder dispatch finished")
}

// RunSweep marks past-due invoices overdue
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	n, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("overdue sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("marked", n).Msg("overdue sweep finished")
	}
}
