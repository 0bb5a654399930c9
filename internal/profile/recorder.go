package profile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tasksched/internal/scheduler"
)

// Recorder is a scheduler.Observer writing one span per task execution into
// a run. Write failures are logged and otherwise ignored.
type Recorder struct {
	scheduler.NopObserver

	store *Store
	runID string
	log   zerolog.Logger
	now   func() time.Time
}

// NewRecorder opens a run named name and returns a recorder for it.
func NewRecorder(ctx context.Context, store *Store, name string, log zerolog.Logger) (*Recorder, error) {
	r := &Recorder{store: store, log: log, now: time.Now}

	id, err := store.StartRun(ctx, name, r.now())
	if err != nil {
		return nil, err
	}
	r.runID = id
	return r, nil
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) TaskFinished(t *scheduler.Task, err error, elapsed time.Duration) {
	r.insert(Span{
		RunID:    r.runID,
		TaskID:   string(t.ID()),
		Kind:     KindTask,
		Name:     t.Name(),
		Start:    r.now().Add(-elapsed),
		Duration: elapsed,
		Status:   statusOf(err),
		Error:    errString(err),
	})
}

// Scope starts a labelled span attributed to the task running on ctx and
// returns the function that ends it with status ok. Outside a task body the
// span carries an empty task ID. Use Span to record a failing region.
//
//	defer rec.Scope(ctx, "decode")()
func (r *Recorder) Scope(ctx context.Context, label string) func() {
	end := r.Span(ctx, label)
	return func() { end(nil) }
}

// Span is Scope with an outcome: the returned function records the span as
// failed when given a non-nil error.
//
//	end := rec.Span(ctx, "encode")
//	err := encode(frame)
//	end(err)
func (r *Recorder) Span(ctx context.Context, label string) func(err error) {
	start := r.now()
	var taskID string
	if t := scheduler.Current(ctx); t != nil {
		taskID = string(t.ID())
	}

	return func(err error) {
		r.insert(Span{
			RunID:    r.runID,
			TaskID:   taskID,
			Kind:     KindScope,
			Name:     label,
			Start:    start,
			Duration: r.now().Sub(start),
			Status:   statusOf(err),
			Error:    errString(err),
		})
	}
}

// Finish closes the run.
func (r *Recorder) Finish(ctx context.Context) error {
	return r.store.FinishRun(ctx, r.runID, r.now())
}

// Summary aggregates the run's spans.
func (r *Recorder) Summary(ctx context.Context) ([]SummaryRow, error) {
	return r.store.Summary(ctx, r.runID)
}

func (r *Recorder) insert(span Span) {
	if err := r.store.InsertSpan(context.Background(), span); err != nil {
		r.log.Warn().Err(err).Str("task_id", span.TaskID).Str("span", span.Name).Msg("dropping profile span")
	}
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
