package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/tasksched/internal/scheduler"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublisher_LifecycleEvents(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 64)
	progressCh := bus.Subscribe(TopicProgress, 64)

	pub := NewPublisher(bus)
	s := scheduler.New(scheduler.WithObserver(pub))

	boom := errors.New("boom")
	a := s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "a", Priority: 2}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{
		ID:    "b",
		After: []*scheduler.Task{a},
		Body:  func(context.Context) error { return boom },
	}))

	if err := scheduler.Worker(context.Background(), s); err != nil {
		t.Fatalf("Worker: %v", err)
	}

	var types []string
	for _, ev := range drain(taskCh) {
		types = append(types, ev.EventType()+":"+ev.TaskID())
		if failed, ok := ev.(TaskFailedEvent); ok && !errors.Is(failed.Err, boom) {
			t.Errorf("failed event err = %v, want boom", failed.Err)
		}
	}
	want := []string{
		"task.submitted:a",
		"task.submitted:b",
		"task.started:a",
		"task.finished:a",
		"task.ready:b",
		"task.started:b",
		"task.failed:b",
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}

	progress := drain(progressCh)
	if len(progress) != len(want)-1 {
		t.Fatalf("got %d progress events, want %d", len(progress), len(want)-1)
	}
	last := progress[len(progress)-1].(ProgressEvent)
	if last.Total != 2 || last.Finished != 1 || last.Failed != 1 || last.Running != 0 || last.Pending != 0 {
		t.Errorf("final progress = %+v", last)
	}
	if !last.Done() {
		t.Error("expected final progress to be done")
	}
}

func TestPublisher_SubmittedReadyFlag(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ch := bus.Subscribe(TopicTask, 8)

	s := scheduler.New(scheduler.WithObserver(NewPublisher(bus)))
	a := s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "a", Priority: 7}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "b", After: []*scheduler.Task{a}}))

	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	first := got[0].(TaskSubmittedEvent)
	second := got[1].(TaskSubmittedEvent)
	if !first.Ready || first.Priority != 7 {
		t.Errorf("first = %+v, want ready with priority 7", first)
	}
	if second.Ready {
		t.Errorf("second = %+v, want waiting", second)
	}
}

func TestPublisher_Progress(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	pub := NewPublisher(bus)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	task := scheduler.NewTask(scheduler.TaskSpec{ID: "x"})
	pub.TaskSubmitted(task, true)
	pub.TaskStarted(task)

	got := pub.Progress()
	if got.Total != 1 || got.Running != 1 || got.Pending != 0 {
		t.Errorf("progress = %+v", got)
	}
	if !got.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, fixed)
	}
}
