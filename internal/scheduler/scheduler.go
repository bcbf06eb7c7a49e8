// Package scheduler runs background jobs. Its one job retries XP awarding
// for closed events whose award is pending or failed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper awards XP for every event still waiting for it.
type Sweeper interface {
	SweepXP(ctx context.Context) (int, error)
}

type XPSweeper struct {
	sched gocron.Scheduler
	job   gocron.Job
	log   *slog.Logger
}

// StartXPSweeper runs sw every interval, starting immediately. Runs never
// overlap; a run still busy when the next one is due delays it.
func StartXPSweeper(ctx context.Context, sw Sweeper, every time.Duration, log *slog.Logger) (*XPSweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	if every <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", every)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &XPSweeper{sched: sched, log: log}
	job, err := sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { s.run(ctx, sw) }),
		gocron.WithName("xp-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule xp sweep: %w", err)
	}
	s.job = job
	sched.Start()
	log.Info("xp sweeper started", "interval", every)
	return s, nil
}

func (s *XPSweeper) run(ctx context.Context, sw Sweeper) {
	if ctx.Err() != nil {
		return
	}
	n, err := sw.SweepXP(ctx)
	if err != nil {
		s.log.Error("xp sweep failed", "awarded", n, "err", err)
		return
	}
	if n > 0 {
		s.log.Info("xp sweep awarded events", "awarded", n)
	}
}

// RunNow triggers a sweep outside the schedule.
func (s *XPSweeper) RunNow() error {
	return s.job.RunNow()
}

// Stop waits for a running sweep and stops the scheduler.
func (s *XPSweeper) Stop() error {
	return s.sched.Shutdown()
}
