package scheduler

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"
)

// Unresolvable returns the waiting tasks that can never become ready because
// some predecessor, directly or transitively, was never submitted to this
// scheduler. The result is sorted by ID.
func (s *Scheduler) Unresolvable() ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Edge (p, w) means p must finish before w
	var edges []toposort.Edge
	for w := range s.waiting {
		for p := range w.preds {
			edges = append(edges, toposort.Edge{p, w})
		}
	}
	if len(edges) == 0 {
		return nil, nil
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("waiting tasks contain cycle: %w", err)
	}

	stuck := make(map[*Task]bool, len(sorted))
	for _, node := range sorted {
		t := node.(*Task)
		if t.owner() != s {
			stuck[t] = true
			continue
		}
		for p := range t.preds {
			if stuck[p] {
				stuck[t] = true
				break
			}
		}
	}

	var out []*Task
	for w := range s.waiting {
		if stuck[w] {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}
