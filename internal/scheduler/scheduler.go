package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRecheckInterval bounds how long a blocked Next call sleeps before
// re-evaluating the ready set without a notification.
const DefaultRecheckInterval = time.Second

// Scheduler owns every submitted, unfinished task and hands ready tasks to
// workers in priority order.
//
// All state, including every task's predecessor and dependent sets, is
// guarded by one mutex. Next is the only operation that blocks; it releases
// the lock while waiting on the condition variable.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[ID]*Task       // registry: waiting, ready and running tasks
	ready   readyQueue         // max-heap on priority
	waiting map[*Task]struct{} // tasks with unresolved predecessors

	recheck  time.Duration
	observer Observer
	log      zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecheckInterval sets the periodic re-check interval for blocked Next calls.
func WithRecheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.recheck = d
		}
	}
}

// WithObserver registers lifecycle observers. Later calls add to earlier ones.
func WithObserver(o ...Observer) Option {
	return func(s *Scheduler) {
		if existing, ok := s.observer.(Observers); ok {
			s.observer = append(existing, o...)
			return
		}
		s.observer = Observers(o)
	}
}

// WithLogger sets the logger used for warnings and task failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:    make(map[ID]*Task),
		waiting:  make(map[*Task]struct{}),
		recheck:  DefaultRecheckInterval,
		observer: Observers(nil),
		log:      zerolog.Nop(),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit registers t and returns it. A task without pending predecessors goes
// straight to the ready set; otherwise it is recorded as a dependent of each
// predecessor and waits. Predecessors that already finished count as satisfied.
//
// Submit returns nil without side effects for a nil task, a task that was
// already submitted, a task whose ID is already live, or a task with a
// predecessor submitted to another scheduler. It never blocks.
func (s *Scheduler) Submit(t *Task) *Task {
	if t == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, live := s.tasks[t.id]; live {
		s.log.Warn().Str("task_id", string(t.id)).Msg("rejecting submission: task ID already live")
		return nil
	}
	for p := range t.preds {
		if owner := p.owner(); owner != nil && owner != s {
			s.log.Warn().
				Str("task_id", string(t.id)).
				Str("predecessor", string(p.id)).
				Msg("rejecting submission: predecessor belongs to another scheduler")
			return nil
		}
	}
	if !t.sched.CompareAndSwap(nil, s) {
		s.log.Warn().Str("task_id", string(t.id)).Msg("rejecting submission: task already submitted")
		return nil
	}

	s.tasks[t.id] = t
	for p := range t.preds {
		if p.owner() == s && p.state == StateFinished {
			t.removePredecessor(p)
			continue
		}
		p.addDependent(t)
	}

	if t.hasNoPredecessors() {
		s.observer.TaskSubmitted(t, true)
		s.makeReady(t)
		return t
	}

	t.state = StateWaiting
	s.waiting[t] = struct{}{}
	s.observer.TaskSubmitted(t, false)
	return t
}

// Next blocks until a task is ready and returns the one with the highest
// priority, marking it running. It returns ErrDrained once no task is ready,
// waiting or running, and ctx.Err() if ctx is cancelled first.
func (s *Scheduler) Next(ctx context.Context) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.broadcast)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.ready.Len() > 0 {
			break
		}
		if len(s.tasks) == 0 {
			return nil, ErrDrained
		}
		s.wait()
	}

	t := s.ready.pop()
	t.state = StateRunning
	return t, nil
}

// ReportFinished releases t's dependents, promoting those with no remaining
// predecessors, and removes t from the registry. Run calls it after the body
// returns; calls for a task that is not running are ignored.
func (s *Scheduler) ReportFinished(t *Task) {
	if t == nil || t.owner() != s {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.state != StateRunning {
		return
	}

	for _, d := range t.dependents {
		d.removePredecessor(t)
		if d.state == StateWaiting && d.hasNoPredecessors() {
			delete(s.waiting, d)
			s.observer.TaskReady(d)
			s.makeReady(d)
		}
	}
	t.dependents = nil
	t.state = StateFinished
	delete(s.tasks, t.id)

	if len(s.tasks) == 0 {
		s.cond.Broadcast()
	}
}

// Stats is a point-in-time count of unfinished tasks.
type Stats struct {
	Ready   int
	Waiting int
	Running int
}

// Total returns the number of unfinished tasks.
func (st Stats) Total() int { return st.Ready + st.Waiting + st.Running }

// Stats returns the current task counts.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler) statsLocked() Stats {
	ready, waiting := s.ready.Len(), len(s.waiting)
	return Stats{
		Ready:   ready,
		Waiting: waiting,
		Running: len(s.tasks) - ready - waiting,
	}
}

// Lookup returns the unfinished task with the given ID.
func (s *Scheduler) Lookup(id ID) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// makeReady queues t and wakes one waiter. Caller holds s.mu.
func (s *Scheduler) makeReady(t *Task) {
	t.state = StateReady
	s.ready.push(t)
	s.cond.Signal()
}

// wait sleeps on the condition variable for at most one re-check interval.
// Caller holds s.mu.
func (s *Scheduler) wait() {
	timer := time.AfterFunc(s.recheck, s.broadcast)
	s.cond.Wait()
	if !timer.Stop() {
		s.checkStall()
	}
}

func (s *Scheduler) broadcast() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// checkStall logs when nothing can make progress: tasks are waiting but none
// is ready or running. Caller holds s.mu.
func (s *Scheduler) checkStall() {
	st := s.statsLocked()
	if st.Ready == 0 && st.Running == 0 && st.Waiting > 0 {
		s.log.Warn().Int("waiting", st.Waiting).Msg("scheduler stalled: waiting tasks have unfinished predecessors that are not scheduled")
	}
}
