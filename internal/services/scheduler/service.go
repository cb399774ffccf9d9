// Package scheduler repeats a job on a cron schedule without overlapping runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datlens/internal/common"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Status reports the scheduler's run history.
type Status struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	IsRunning bool       `json:"is_running"`
	Runs      int        `json:"runs"`
	Skipped   int        `json:"skipped"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Service runs one named job on a cron schedule.
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger

	mu        sync.Mutex // Protects the fields below
	name      string
	schedule  string
	cronID    cron.EntryID
	isRunning bool
	runs      int
	skipped   int
	lastRun   *time.Time
	lastError string
}

// NewService creates a scheduler service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
	}
}

// Run registers job under schedule and blocks until ctx is cancelled. A tick
// that fires while the previous run is still in progress is skipped. When
// runNow is set the job also runs once immediately.
func (s *Service) Run(ctx context.Context, name, schedule string, runNow bool, job Job) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.execute(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.mu.Lock()
	s.name = name
	s.schedule = schedule
	s.cronID = cronID
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Scheduler started")

	if runNow {
		common.SafeGo(s.logger, name, func() { s.execute(ctx, job) })
	}

	<-ctx.Done()

	// Wait for an in-flight run to finish
	<-s.cron.Stop().Done()
	s.waitIdle()

	s.logger.Info().Str("job_name", name).Msg("Scheduler stopped")
	return nil
}

// execute runs job unless a previous run is in progress, and reports whether it ran.
func (s *Service) execute(ctx context.Context, job Job) (ran bool) {
	s.mu.Lock()
	name := s.name
	if s.isRunning {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Previous run still in progress, skipping")
		return false
	}
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.isRunning = true
	s.mu.Unlock()

	// A panicking job still counts as run
	ran = true
	started := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in scheduled job")
		}

		finished := time.Now()
		s.mu.Lock()
		s.isRunning = false
		s.runs++
		s.lastRun = &finished
		s.lastError = ""
		if err != nil {
			s.lastError = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error().Err(err).Str("job_name", name).Dur("duration", finished.Sub(started)).Msg("Scheduled run failed")
		} else {
			s.logger.Info().Str("job_name", name).Dur("duration", finished.Sub(started)).Msg("Scheduled run completed")
		}
	}()

	s.logger.Info().Str("job_name", name).Msg("Scheduled run started")
	err = job(ctx)
	return ran
}

func (s *Service) waitIdle() {
	for {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Status returns a snapshot of the run history.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Name:      s.name,
		Schedule:  s.schedule,
		IsRunning: s.isRunning,
		Runs:      s.runs,
		Skipped:   s.skipped,
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
	if s.cronID != 0 {
		if next := s.cron.Entry(s.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}
