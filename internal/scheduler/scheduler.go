// Package scheduler runs a job on a cron schedule, never overlapping runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, log: log}
}

// Add registers job under a standard five-field spec or a descriptor such
// as "@every 30m". Each invocation gets ctx.
func (s *Scheduler) Add(ctx context.Context, spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.log.Info("⏰ scheduled run started", "job", name)
		if err := job(ctx); err != nil {
			s.log.Error("scheduled run failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		s.log.Info("scheduled run finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Next returns the next activation time of the first entry.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
