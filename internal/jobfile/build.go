package jobfile

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/tasksched/internal/scheduler"
)

// ErrNoScheduler is returned by a spawning body run outside a scheduler.
var ErrNoScheduler = errors.New("no scheduler on context")

// Factory supplies the runtime pieces of a task definition.
type Factory interface {
	// Body returns the function run for def. It may return nil.
	Body(def TaskDef) scheduler.Body
	// Priority returns the effective scheduling priority of def.
	Priority(def TaskDef) int
}

// Build constructs the job's top-level tasks in topological order, so each
// task's predecessors appear before it. Submitting the result in order to a
// scheduler runs the job.
func Build(job *Job, f Factory) []*scheduler.Task {
	return buildLevel(job.Tasks, job.order, f)
}

// Submit builds the job and submits every task to s. It returns the tasks
// that were accepted.
func Submit(s *scheduler.Scheduler, job *Job, f Factory) ([]*scheduler.Task, error) {
	tasks := Build(job, f)
	for _, t := range tasks {
		if s.Submit(t) == nil {
			return tasks, fmt.Errorf("task %q rejected by scheduler", t.ID())
		}
	}
	return tasks, nil
}

func buildLevel(defs []TaskDef, order []string, f Factory) []*scheduler.Task {
	byID := make(map[string]TaskDef, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	built := make(map[string]*scheduler.Task, len(defs))
	tasks := make([]*scheduler.Task, 0, len(defs))
	for _, id := range order {
		def := byID[id]

		after := make([]*scheduler.Task, 0, len(def.After))
		for _, dep := range def.After {
			after = append(after, built[dep])
		}

		t := scheduler.NewTask(scheduler.TaskSpec{
			ID:       scheduler.ID(def.ID),
			Name:     def.DisplayName(),
			Priority: f.Priority(def),
			Body:     withSpawn(f.Body(def), def.Spawn, f),
			After:    after,
		})
		built[id] = t
		tasks = append(tasks, t)
	}
	return tasks
}

// withSpawn runs body and then submits children to the scheduler that owns
// the running task.
func withSpawn(body scheduler.Body, children []TaskDef, f Factory) scheduler.Body {
	if len(children) == 0 {
		return body
	}

	return func(ctx context.Context) error {
		if body != nil {
			if err := body(ctx); err != nil {
				return err
			}
		}

		s := scheduler.FromContext(ctx)
		if s == nil {
			return ErrNoScheduler
		}

		// Validated at parse time
		order, err := topoOrder(children)
		if err != nil {
			return err
		}
		for _, t := range buildLevel(children, order, f) {
			if s.Submit(t) == nil {
				return fmt.Errorf("spawned task %q rejected by scheduler", t.ID())
			}
		}
		return nil
	}
}
