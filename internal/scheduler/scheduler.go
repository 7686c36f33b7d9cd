// Package scheduler runs the periodic jobs of a long-lived session, such
// as moving the habit store to a new calendar day at local midnight.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/logger"
)

// Roller moves state to the current day. Calling it when the day has not
// changed must be a no-op.
type Roller interface {
	Rollover(ctx context.Context) error
}

// Scheduler wraps cron-based jobs evaluated in one time zone.
type Scheduler struct {
	cron *cron.Cron
	log  *log.Logger
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  logger.Component("scheduler"),
	}
}

// ScheduleRollover runs r.Rollover at local midnight. A catch-up check
// every interval covers a machine that slept through midnight; interval
// <= 0 disables it.
func (s *Scheduler) ScheduleRollover(ctx context.Context, r Roller, interval time.Duration) ([]cron.EntryID, error) {
	job := func() {
		if ctx.Err() != nil {
			return
		}
		if err := r.Rollover(ctx); err != nil {
			s.log.Error("day rollover failed", "error", err)
		}
	}

	id, err := s.cron.AddFunc(constants.RolloverSpec, job)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule rollover: %w", err)
	}
	ids := []cron.EntryID{id}
	if interval > 0 {
		catchUp, err := s.ScheduleInterval(interval, job)
		if err != nil {
			s.cron.Remove(id)
			return nil, err
		}
		ids = append(ids, catchUp)
	}
	return ids, nil
}

// ScheduleInterval registers a periodic job every interval.
func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval), job)
}

// Run executes the job with id immediately.
func (s *Scheduler) Run(id cron.EntryID) bool {
	e := s.cron.Entry(id)
	if !e.Valid() {
		return false
	}
	e.Job.Run()
	return true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
