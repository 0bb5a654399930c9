package scheduler

import "container/heap"

// readyQueue is a max-heap of tasks keyed on priority. Equal priorities come
// out in whatever order the heap produces.
type readyQueue []*Task

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool { return q[i].priority > q[j].priority }

func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *readyQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

func (q *readyQueue) push(t *Task) { heap.Push(q, t) }

func (q *readyQueue) pop() *Task { return heap.Pop(q).(*Task) }
