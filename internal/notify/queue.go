package notify

import (
	"container/list"
	"sync"
)

// DefaultQueueSize is the number of events kept per user for replay.
const DefaultQueueSize = 50

// Queue buffers recent events for reconnecting clients, sharded per user.
// Each user gets a bounded list so one user's burst cannot evict events
// belonging to another user.
type Queue struct {
	mu      sync.RWMutex
	queues  map[string]*list.List // userID -> events
	maxSize int
}

// NewQueue creates a per-user replay queue.
func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &Queue{
		queues:  make(map[string]*list.List),
		maxSize: maxSize,
	}
}

// Enqueue appends ev to the user's queue, evicting the oldest events past
// the bound.
func (q *Queue) Enqueue(userID string, ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.queues[userID]
	if !ok {
		l = list.New()
		q.queues[userID] = l
	}
	l.PushBack(ev)
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
}

// After returns the user's queued events with an id greater than afterID,
// oldest first.
func (q *Queue) After(userID string, afterID int64) []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	l, ok := q.queues[userID]
	if !ok {
		return nil
	}
	var missed []Event
	for e := l.Front(); e != nil; e = e.Next() {
		ev := e.Value.(Event)
		if ev.ID > afterID {
			missed = append(missed, ev)
		}
	}
	return missed
}

// Prune drops the user's queue.
func (q *Queue) Prune(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, userID)
}

// Len returns the number of queued events for a user.
func (q *Queue) Len(userID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if l, ok := q.queues[userID]; ok {
		return l.Len()
	}
	return 0
}
