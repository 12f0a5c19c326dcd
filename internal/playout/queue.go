package playout

import "sync"

// Queue is the ordered list of pending media items. Insertion order is
// significant: Dequeue returns items in the order Enqueue added them.
// Both the upload path and the orchestrator's selection logic touch the
// queue concurrently, so every operation is serialized through one lock.
type Queue struct {
	mu    sync.Mutex
	items []MediaItem
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an item and returns the new queue length.
func (q *Queue) Enqueue(item MediaItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.Status = ItemQueued
	q.items = append(q.items, item)
	return len(q.items)
}

// Dequeue removes and returns the front item. The second return is false if
// the queue is empty. The returned item is marked active: it has left the
// queue for good, even if its playback later fails.
func (q *Queue) Dequeue() (MediaItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return MediaItem{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	item.Status = ItemActive
	return item, true
}

// Peek returns the front item without removing it.
func (q *Queue) Peek() (MediaItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return MediaItem{}, false
	}
	return q.items[0], true
}

// Snapshot returns an ordered copy of the pending items for status reporting.
func (q *Queue) Snapshot() []MediaItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]MediaItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
