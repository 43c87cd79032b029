// Package scheduler runs the daily season-boundary check on a cron
// schedule in the competition timezone.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkanda/torifuda/pkg/logger"
)

// Job is the work the scheduler triggers.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner with a single recurring job.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

// New creates a scheduler that runs job on the given cron spec,
// interpreted in loc.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  logger.Get().Named("scheduler"),
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		s.log.Info(ctx, "boundary check triggered")
		job(ctx)
	})
	if err != nil {
		return nil, NewKind("add cron job", ErrInvalidSchedule)
	}
	return s, nil
}

// Start begins scheduling. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
