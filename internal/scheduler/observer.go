package scheduler

import "time"

// Observer receives task lifecycle notifications.
//
// TaskSubmitted and TaskReady are called with the scheduler lock held and must
// not block or call back into the scheduler. TaskStarted and TaskFinished are
// called from Run on the worker goroutine, outside the lock.
type Observer interface {
	TaskSubmitted(t *Task, ready bool)
	TaskReady(t *Task)
	TaskStarted(t *Task)
	TaskFinished(t *Task, err error, elapsed time.Duration)
}

// Observers fans notifications out to each observer in order.
type Observers []Observer

func (o Observers) TaskSubmitted(t *Task, ready bool) {
	for _, ob := range o {
		ob.TaskSubmitted(t, ready)
	}
}

func (o Observers) TaskReady(t *Task) {
	for _, ob := range o {
		ob.TaskReady(t)
	}
}

func (o Observers) TaskStarted(t *Task) {
	for _, ob := range o {
		ob.TaskStarted(t)
	}
}

func (o Observers) TaskFinished(t *Task, err error, elapsed time.Duration) {
	for _, ob := range o {
		ob.TaskFinished(t, err, elapsed)
	}
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) TaskSubmitted(*Task, bool)                {}
func (NopObserver) TaskReady(*Task)                          {}
func (NopObserver) TaskStarted(*Task)                        {}
func (NopObserver) TaskFinished(*Task, error, time.Duration) {}
