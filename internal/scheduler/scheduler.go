// Package scheduler runs the backup job on a cron or interval plan.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// Job is the work the scheduler triggers. Overlapping runs are
// coalesced, so a slow backup delays the next one instead of running
// concurrently with it.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner configured from ScheduleConfig.
type Scheduler struct {
	cfg config.ScheduleConfig
	job Job
	log zerolog.Logger
}

func New(cfg config.ScheduleConfig, job Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, job: job, log: log}
}

// Spec returns the cron expression for the configured plan.
func (s *Scheduler) Spec() string {
	if s.cfg.Mode == "interval" {
		return fmt.Sprintf("@every %dh", s.cfg.IntervalHours)
	}
	return fmt.Sprintf("%d %d * * %s", s.cfg.Minute, s.cfg.Hour, s.cfg.DayOfWeek)
}

// Describe returns a human-readable summary of the plan.
func (s *Scheduler) Describe() string {
	if s.cfg.Mode == "interval" {
		return fmt.Sprintf("every %d hour(s), first run immediately", s.cfg.IntervalHours)
	}
	day := s.cfg.DayOfWeek
	if day == "*" {
		day = "every day"
	} else {
		day = "weekday " + day
	}
	return fmt.Sprintf("at %02d:%02d, %s", s.cfg.Hour, s.cfg.Minute, day)
}

// Run blocks until ctx is cancelled, firing the job per the plan. In
// interval mode the first run starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	runner := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))

	_, err := runner.AddFunc(s.Spec(), func() { s.job(ctx) })
	if err != nil {
		return fmt.Errorf("bad schedule %q: %w", s.Spec(), err)
	}

	s.log.Info().Str("spec", s.Spec()).Str("plan", s.Describe()).Msg("scheduler started")
	runner.Start()

	if s.cfg.Mode == "interval" {
		s.job(ctx)
	}

	<-ctx.Done()
	s.log.Info().Msg("scheduler stopping")
	stopCtx := runner.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("running job did not finish within shutdown grace period")
	}
	return nil
}

// cronLogger adapts zerolog to the cron logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
