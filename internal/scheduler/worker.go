package scheduler

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Worker runs the worker loop against s until it drains. It returns nil on
// drain and ctx.Err() on cancellation. Task failures are logged and do not
// stop the loop.
func Worker(ctx context.Context, s *Scheduler) error {
	return s.work(ctx, 0)
}

// RunWorkers runs n worker loops concurrently and waits for all of them.
// n <= 0 uses GOMAXPROCS.
func RunWorkers(ctx context.Context, s *Scheduler, n int) error {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := i
		g.Go(func() error {
			return s.work(gctx, id)
		})
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, workerID int) error {
	logger := s.log.With().Int("worker", workerID).Logger()
	logger.Debug().Msg("worker started")

	for {
		t, err := s.Next(ctx)
		if errors.Is(err, ErrDrained) {
			logger.Debug().Msg("worker finished: scheduler drained")
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.Run(ctx); err != nil {
			logger.Error().Err(err).
				Str("task_id", string(t.ID())).
				Str("task", t.Name()).
				Msg("task failed")
		}
	}
}
