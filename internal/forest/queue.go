package forest

import "sync"

// Queue is the unbounded FIFO hand-off between a scan and its consumer.
// Push never blocks the producer; TryDrain never waits for items.
type Queue struct {
	mu    sync.Mutex
	items []DuplicateGroup
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a group
func (q *Queue) Push(g DuplicateGroup) {
	q.mu.Lock()
	q.items = append(q.items, g)
	q.mu.Unlock()
}

// TryDrain removes and returns every queued group, or nil if there are none
func (q *Queue) TryDrain() []DuplicateGroup {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued groups
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
