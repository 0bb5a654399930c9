package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicProgress = "progress"
)

// Event type constants
const (
	EventTypeTaskSubmitted = "task.submitted"
	EventTypeTaskReady     = "task.ready"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskFinished  = "task.finished"
	EventTypeTaskFailed    = "task.failed"
	EventTypeProgress      = "progress"
)

// TaskSubmittedEvent is published when a task enters a scheduler.
type TaskSubmittedEvent struct {
	ID        string
	Name      string
	Priority  int
	Ready     bool // false while the task waits on predecessors
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() string    { return e.ID }

// TaskReadyEvent is published when a waiting task's last predecessor finishes.
type TaskReadyEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskReadyEvent) EventType() string { return EventTypeTaskReady }
func (e TaskReadyEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a worker begins executing a task.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskFinishedEvent is published when a task body returns nil.
type TaskFinishedEvent struct {
	ID        string
	Name      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task body returns an error or panics.
type TaskFailedEvent struct {
	ID        string
	Name      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// ProgressEvent carries aggregate counts after every lifecycle change.
type ProgressEvent struct {
	Total     int // tasks submitted so far
	Finished  int // finished successfully
	Failed    int
	Running   int
	Pending   int // submitted, not yet started
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// Done reports whether every submitted task has completed.
func (e ProgressEvent) Done() bool {
	return e.Total > 0 && e.Finished+e.Failed == e.Total
}
