package scheduler

import (
	"context"
	"slices"
	"sync"
)

// ResourceLocks serializes task bodies that touch the same named resource,
// such as an output image or a shared cache file. Bodies holding different
// resources run concurrently.
type ResourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResourceLocks creates an empty lock set.
func NewResourceLocks() *ResourceLocks {
	return &ResourceLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ResourceLocks) get(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Acquire locks every named resource in sorted order, so two callers naming
// the same set in different orders cannot deadlock. It returns the matching
// release function.
func (r *ResourceLocks) Acquire(names []string) (release func()) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, name := range sorted {
		l := r.get(name)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Exclusive wraps body so it runs while holding the named resources.
// A body with no resources is returned unchanged.
func (r *ResourceLocks) Exclusive(names []string, body Body) Body {
	if len(names) == 0 || body == nil {
		return body
	}
	names = slices.Clone(names)
	return func(ctx context.Context) error {
		release := r.Acquire(names)
		defer release()
		return body(ctx)
	}
}
