package events

import (
	"sync"
	"time"

	"github.com/aristath/tasksched/internal/scheduler"
)

// Publisher is a scheduler.Observer that turns lifecycle notifications into
// bus events. Every event that changes the counts is followed by a
// ProgressEvent on TopicProgress.
type Publisher struct {
	bus *EventBus
	now func() time.Time

	mu       sync.Mutex
	total    int
	running  int
	finished int
	failed   int
}

// NewPublisher creates a Publisher writing to bus.
func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

func (p *Publisher) TaskSubmitted(t *scheduler.Task, ready bool) {
	p.mu.Lock()
	p.total++
	progress := p.progressLocked()
	p.mu.Unlock()

	p.bus.Publish(TopicTask, TaskSubmittedEvent{
		ID:        string(t.ID()),
		Name:      t.Name(),
		Priority:  t.Priority(),
		Ready:     ready,
		Timestamp: progress.Timestamp,
	})
	p.bus.Publish(TopicProgress, progress)
}

func (p *Publisher) TaskReady(t *scheduler.Task) {
	p.bus.Publish(TopicTask, TaskReadyEvent{ID: string(t.ID()), Timestamp: p.now()})
}

func (p *Publisher) TaskStarted(t *scheduler.Task) {
	p.mu.Lock()
	p.running++
	progress := p.progressLocked()
	p.mu.Unlock()

	p.bus.Publish(TopicTask, TaskStartedEvent{
		ID:        string(t.ID()),
		Name:      t.Name(),
		Timestamp: progress.Timestamp,
	})
	p.bus.Publish(TopicProgress, progress)
}

func (p *Publisher) TaskFinished(t *scheduler.Task, err error, elapsed time.Duration) {
	p.mu.Lock()
	p.running--
	if err != nil {
		p.failed++
	} else {
		p.finished++
	}
	progress := p.progressLocked()
	p.mu.Unlock()

	if err != nil {
		p.bus.Publish(TopicTask, TaskFailedEvent{
			ID:        string(t.ID()),
			Name:      t.Name(),
			Err:       err,
			Duration:  elapsed,
			Timestamp: progress.Timestamp,
		})
	} else {
		p.bus.Publish(TopicTask, TaskFinishedEvent{
			ID:        string(t.ID()),
			Name:      t.Name(),
			Duration:  elapsed,
			Timestamp: progress.Timestamp,
		})
	}
	p.bus.Publish(TopicProgress, progress)
}

// Progress returns the current aggregate counts.
func (p *Publisher) Progress() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Publisher) progressLocked() ProgressEvent {
	return ProgressEvent{
		Total:     p.total,
		Finished:  p.finished,
		Failed:    p.failed,
		Running:   p.running,
		Pending:   p.total - p.finished - p.failed - p.running,
		Timestamp: p.now(),
	}
}
