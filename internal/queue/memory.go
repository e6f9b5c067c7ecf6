package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryQueue is the in-process ReadyQueue for single-instance deployments.
// Same ordering contract as RedisQueue, no network hop.
type MemoryQueue struct {
	mu    sync.Mutex
	refs  refHeap
	index map[string]*ref
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{index: make(map[string]*ref)}
}

type ref struct {
	id          string
	priority    int
	scheduledAt time.Time
	pos         int
}

type refHeap []*ref

func (h refHeap) Len() int { return len(h) }

func (h refHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.scheduledAt.Equal(b.scheduledAt) {
		return a.scheduledAt.Before(b.scheduledAt)
	}
	return a.id < b.id
}

func (h refHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *refHeap) Push(x any) {
	r := x.(*ref)
	r.pos = len(*h)
	*h = append(*h, r)
}

func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

func (q *MemoryQueue) Push(_ context.Context, id string, priority int, scheduledAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r, ok := q.index[id]; ok {
		r.priority = priority
		r.scheduledAt = scheduledAt
		heap.Fix(&q.refs, r.pos)
		return nil
	}
	r := &ref{id: id, priority: priority, scheduledAt: scheduledAt}
	q.index[id] = r
	heap.Push(&q.refs, r)
	return nil
}

func (q *MemoryQueue) PopReady(_ context.Context, now time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// The heap head can be a future high-priority entry shadowing a due
	// lower-priority one, so scan for the best due ref instead of only
	// checking the top.
	best := -1
	for i, r := range q.refs {
		if r.scheduledAt.After(now) {
			continue
		}
		if best == -1 || q.refs.Less(i, best) {
			best = i
		}
	}
	if best == -1 {
		return "", nil
	}
	r := q.refs[best]
	heap.Remove(&q.refs, best)
	delete(q.index, r.id)
	return r.id, nil
}

func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.index[id]
	if !ok {
		return nil
	}
	heap.Remove(&q.refs, r.pos)
	delete(q.index, id)
	return nil
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.refs.Len(), nil
}

func (q *MemoryQueue) Ping(_ context.Context) error { return nil }

func (q *MemoryQueue) Close() error { return nil }
