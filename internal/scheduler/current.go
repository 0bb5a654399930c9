package scheduler

import "context"

// currentKey is an unexported type to prevent collisions with other context keys.
type currentKey struct{}

// withCurrent returns a context that reports t as the executing task. The
// caller's context is left untouched, so the scope ends when Run returns.
func withCurrent(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, currentKey{}, t)
}

// Current returns the task whose body is executing in ctx, or nil.
func Current(ctx context.Context) *Task {
	t, _ := ctx.Value(currentKey{}).(*Task)
	return t
}

// FromContext returns the scheduler owning the task executing in ctx, or nil.
// Task bodies use it to submit follow-up work.
func FromContext(ctx context.Context) *Scheduler {
	if t := Current(ctx); t != nil {
		return t.owner()
	}
	return nil
}
