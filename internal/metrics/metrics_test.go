package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aristath/tasksched/internal/scheduler"
)

func TestCollector_GaugesFollowLifecycle(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	s := scheduler.New(scheduler.WithObserver(c))

	a := s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "a"}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "b", After: []*scheduler.Task{a}}))

	if got := testutil.ToFloat64(c.ready); got != 1 {
		t.Errorf("ready = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.waiting); got != 1 {
		t.Errorf("waiting = %v, want 1", got)
	}

	claimed, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	c.TaskStarted(claimed)
	if got := testutil.ToFloat64(c.running); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	s.ReportFinished(claimed)
	c.TaskFinished(claimed, nil, 0)

	if got := testutil.ToFloat64(c.ready); got != 1 {
		t.Errorf("ready after promotion = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.waiting); got != 0 {
		t.Errorf("waiting after promotion = %v, want 0", got)
	}
}

// Cancelling workers mid-run must leave the gauges equal to the scheduler's
// own counts.
func TestCollector_GaugesMatchStatsAfterCancel(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	s := scheduler.New(scheduler.WithObserver(c))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "first", Priority: 10, Body: func(context.Context) error {
		cancel()
		return nil
	}}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "second"}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "third"}))

	if err := scheduler.Worker(ctx, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("Worker err = %v, want Canceled", err)
	}

	st := s.Stats()
	if st.Ready != 2 || st.Running != 0 {
		t.Fatalf("stats = %+v, want 2 ready", st)
	}
	if got := testutil.ToFloat64(c.ready); got != float64(st.Ready) {
		t.Errorf("ready gauge = %v, want %d", got, st.Ready)
	}
	if got := testutil.ToFloat64(c.running); got != 0 {
		t.Errorf("running gauge = %v, want 0", got)
	}
}

func TestCollector_FinishedByStatus(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	s := scheduler.New(scheduler.WithObserver(c))

	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "ok"}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "err", Body: func(context.Context) error {
		return errors.New("boom")
	}}))
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{ID: "panic", Body: func(context.Context) error {
		panic("bad tile")
	}}))

	if err := scheduler.RunWorkers(context.Background(), s, 2); err != nil {
		t.Fatalf("RunWorkers: %v", err)
	}

	if got := testutil.ToFloat64(c.submitted); got != 3 {
		t.Errorf("submitted = %v, want 3", got)
	}
	for _, status := range []string{StatusOK, StatusError, StatusPanicked} {
		if got := testutil.ToFloat64(c.finished.WithLabelValues(status)); got != 1 {
			t.Errorf("finished{status=%q} = %v, want 1", status, got)
		}
	}
	for name, g := range map[string]prometheus.Gauge{"ready": c.ready, "waiting": c.waiting, "running": c.running} {
		if got := testutil.ToFloat64(g); got != 0 {
			t.Errorf("%s = %v after drain, want 0", name, got)
		}
	}
	if got := testutil.CollectAndCount(c.duration); got != 1 {
		t.Errorf("duration collected %d metrics, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.TaskSubmitted(scheduler.NewTask(scheduler.TaskSpec{ID: "x"}), true)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	for _, name := range []string{"tasksched_tasks_submitted_total 1", "tasksched_tasks_ready 1"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected second registration on the same registry to panic")
		}
	}()
	NewCollector(reg)
}
