package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ID identifies a task for its whole lifetime.
type ID string

// Body is the work a task performs. The scheduler never inspects it.
type Body func(ctx context.Context) error

// State represents where a task is in its lifecycle.
type State int

const (
	StateCreated  State = iota // Constructed, not submitted
	StateWaiting               // Submitted, predecessors remain
	StateReady                 // Queued in the ready set
	StateRunning               // Claimed by a worker
	StateFinished              // Reported finished, removed from the registry
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TaskSpec describes a task to construct.
type TaskSpec struct {
	ID       ID      // Optional; a UUID is assigned when empty
	Name     string  // Human-readable label (defaults to ID)
	Priority int     // Higher runs earlier among ready tasks
	Body     Body    // Work to perform; nil is a no-op body
	After    []*Task // Predecessors that must finish first
}

// Task is a unit of schedulable work.
//
// Predecessors are fixed at construction, so every predecessor already exists
// when a task is built and a cycle cannot be expressed. All mutable fields are
// guarded by the owning scheduler's lock.
type Task struct {
	id       ID
	name     string
	priority int
	body     Body

	preds      map[*Task]struct{}
	dependents []*Task

	sched atomic.Pointer[Scheduler]
	state State
	index int // position in the ready heap, -1 when absent
}

// NewTask constructs a task from spec. Nil predecessors are ignored.
func NewTask(spec TaskSpec) *Task {
	id := spec.ID
	if id == "" {
		id = ID(uuid.NewString())
	}
	name := spec.Name
	if name == "" {
		name = string(id)
	}

	t := &Task{
		id:       id,
		name:     name,
		priority: spec.Priority,
		body:     spec.Body,
		preds:    make(map[*Task]struct{}, len(spec.After)),
		index:    -1,
	}
	for _, p := range spec.After {
		if p != nil {
			t.preds[p] = struct{}{}
		}
	}
	return t
}

// ID returns the task identifier.
func (t *Task) ID() ID { return t.id }

// Name returns the task label.
func (t *Task) Name() string { return t.name }

// Priority returns the ordinal used for ready-set ordering.
func (t *Task) Priority() int { return t.priority }

// State returns the current lifecycle state.
func (t *Task) State() State {
	if s := t.owner(); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return t.state
}

// HasNoPredecessors reports whether every predecessor has finished.
func (t *Task) HasNoPredecessors() bool {
	if s := t.owner(); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return t.hasNoPredecessors()
}

// owner returns the scheduler this task was submitted to, or nil.
func (t *Task) owner() *Scheduler {
	return t.sched.Load()
}

func (t *Task) hasNoPredecessors() bool {
	return len(t.preds) == 0
}

func (t *Task) addDependent(d *Task) {
	t.dependents = append(t.dependents, d)
}

func (t *Task) removePredecessor(p *Task) {
	delete(t.preds, p)
}

// Run executes the task body with the current-task context scoped to this
// task, then reports completion to the owning scheduler. Completion is
// reported whether the body returns normally, returns an error, or panics.
// A panic is recovered and returned as a *PanicError.
func (t *Task) Run(ctx context.Context) (err error) {
	s := t.owner()
	if s == nil {
		return ErrNotSubmitted
	}
	if t.State() != StateRunning {
		return fmt.Errorf("task %q: %w", t.id, ErrNotRunning)
	}

	start := time.Now()
	s.observer.TaskStarted(t)
	defer func() {
		s.observer.TaskFinished(t, err, time.Since(start))
		s.ReportFinished(t)
	}()

	return t.execute(withCurrent(ctx, t))
}

func (t *Task) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: t.id, Value: r, Stack: debug.Stack()}
		}
	}()

	if t.body == nil {
		return nil
	}
	return t.body(ctx)
}
