// Package scheduler runs sweeps on a fixed period. Runs of one job never
// overlap: a trigger that arrives while the job is running waits for that
// run and shares its result.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// SweepFunc processes one batch and reports how many items it changed.
type SweepFunc func(ctx context.Context) (int, error)

type Job struct {
	name     string
	interval time.Duration
	fn       SweepFunc
	log      *slog.Logger

	sf singleflight.Group
}

func NewJob(name string, interval time.Duration, fn SweepFunc, log *slog.Logger) *Job {
	if interval <= 0 {
		interval = time.Minute
	}

	if log == nil {
		log = slog.Default()
	}

	return &Job{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      log.With(slog.String("job", name)),
	}
}

func (j *Job) Name() string { return j.name }

// Trigger runs the job now, or joins the run already in progress. The run
// uses the context of the caller that started it. shared reports whether
// the result came from a run started by someone else.
func (j *Job) Trigger(ctx context.Context) (n int, shared bool, err error) {
	v, err, shared := j.sf.Do(j.name, func() (any, error) {
		return j.fn(ctx)
	})

	n, _ = v.(int)
	return n, shared, err
}

// Run triggers the job every interval until ctx is done. Failed runs are
// logged and the next tick tries again.
func (j *Job) Run(ctx context.Context) error {
	j.log.Info("scheduler started", slog.Duration("interval", j.interval))

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("scheduler stopped")
			return nil
		case <-t.C:
			if _, _, err := j.Trigger(ctx); err != nil && ctx.Err() == nil {
				j.log.Error("scheduled run failed", slog.Any("err", err))
			}
		}
	}
}
