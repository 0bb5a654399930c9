package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrDrained is returned by Next once no task is ready, waiting or running.
	ErrDrained = errors.New("scheduler drained")

	// ErrNotSubmitted is returned when running a task that has no scheduler.
	ErrNotSubmitted = errors.New("task not submitted")

	// ErrNotRunning is returned when running a task that was not claimed through Next.
	ErrNotRunning = errors.New("task not claimed")
)

// PanicError wraps a panic raised by a task body.
type PanicError struct {
	Task  ID
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}
