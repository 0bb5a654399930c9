package jobfile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tasksched/internal/config"
	"github.com/aristath/tasksched/internal/process"
	"github.com/aristath/tasksched/internal/resilience"
	"github.com/aristath/tasksched/internal/scheduler"
)

// ErrSimulatedFailure is returned by attempts covered by fail_attempts.
var ErrSimulatedFailure = errors.New("simulated failure")

// Executor is the Factory used by the CLI. Bodies run the task's command, or
// sleep for its work duration when it has none, failing the first
// fail_attempts attempts. Per-kind behavior comes from Kinds.
type Executor struct {
	Kinds map[string]config.KindConfig

	// Policy retries kinds with retry enabled; nil disables retry.
	Policy *resilience.Policy

	// Locks guards kind resources; nil ignores them.
	Locks *scheduler.ResourceLocks

	// Procs runs task commands; a nil manager runs them untracked.
	Procs *process.Manager

	// Span, when set, wraps the command or work in a profiling span and
	// receives its outcome.
	Span func(ctx context.Context, label string) func(err error)
}

// Priority adds the kind's boost to the task priority.
func (e *Executor) Priority(def TaskDef) int {
	return def.Priority + e.Kinds[def.Kind].PriorityBoost
}

// Body builds the body for def.
func (e *Executor) Body(def TaskDef) scheduler.Body {
	kind := e.Kinds[def.Kind]
	procs := e.Procs
	if procs == nil {
		procs = process.NewManager(zerolog.Nop())
	}

	var attempts atomic.Int32
	body := func(ctx context.Context) (err error) {
		n := int(attempts.Add(1))
		if n <= def.FailAttempts {
			return fmt.Errorf("%w: attempt %d of %d", ErrSimulatedFailure, n, def.FailAttempts)
		}

		label := "work"
		if def.Command != "" {
			label = "command"
		}
		if e.Span != nil {
			end := e.Span(ctx, label)
			defer func() { end(err) }()
		}

		if def.Command != "" {
			_, err = procs.Run(ctx, def.Command)
			return err
		}
		return sleep(ctx, def.Work.Std())
	}

	var wrapped scheduler.Body = body
	if kind.Retry && e.Policy != nil {
		wrapped = e.Policy.Wrap(def.Kind, wrapped)
	}
	if e.Locks != nil && len(kind.Resources) > 0 {
		wrapped = e.Locks.Exclusive(kind.Resources, wrapped)
	}
	return wrapped
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
