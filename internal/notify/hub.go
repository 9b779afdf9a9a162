// Package notify fans achievement unlock events out to connected clients.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/tranquili/internal/achievement"
)

// EventAchievementUnlocked is the only event type currently published.
const EventAchievementUnlocked = "achievement_unlocked"

// subscriberBuffer is how many live events a slow subscriber may lag behind
// before events are dropped for it. Dropped events stay in the replay queue.
const subscriberBuffer = 16

// Event is a single notification delivered to a user.
type Event struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	AchievementID string    `json:"achievement_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	At            time.Time `json:"at"`
}

// Subscription receives live events for one user until it is closed.
type Subscription struct {
	C <-chan Event

	id     int64
	userID string
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

// Done is closed when the hub drops the subscription, e.g. after the user
// was purged.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub assigns event ids, keeps the replay queue, and delivers events to live
// subscribers.
type Hub struct {
	queue *Queue

	mu     sync.RWMutex
	subs   map[string]map[int64]*Subscription // userID -> subscription id -> subscription
	nextID int64
	lastEv int64
	now    func() time.Time
}

// NewHub creates a hub keeping queueSize events per user for replay.
//
// Event ids start at the current Unix time in microseconds, so ids from a
// restarted process sort after any id a client saw before the restart. The
// value stays below 2^53 and survives JSON number decoding in browsers.
func NewHub(queueSize int) *Hub {
	return &Hub{
		queue:  NewQueue(queueSize),
		subs:   make(map[string]map[int64]*Subscription),
		lastEv: time.Now().UnixMicro(),
		now:    time.Now,
	}
}

// LastID returns the id of the most recently published event, or the starting
// id if nothing was published yet.
func (h *Hub) LastID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastEv
}

// Publish enqueues and delivers one event per definition, in order.
func (h *Hub) Publish(_ context.Context, userID string, defs []achievement.Definition) {
	if len(defs) == 0 {
		return
	}

	h.mu.Lock()
	events := make([]Event, 0, len(defs))
	at := h.now()
	for _, d := range defs {
		h.lastEv++
		ev := Event{
			ID:            h.lastEv,
			Type:          EventAchievementUnlocked,
			AchievementID: d.ID,
			Title:         d.Title,
			Description:   d.Description,
			At:            at,
		}
		h.queue.Enqueue(userID, ev)
		events = append(events, ev)
	}

	// Snapshot subscribers so delivery does not hold the write lock.
	subs := make([]*Subscription, 0, len(h.subs[userID]))
	for _, s := range h.subs[userID] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		for _, ev := range events {
			select {
			case s.ch <- ev:
			case <-s.done:
			default:
				slog.Warn("notification subscriber lagging, event left for replay",
					"user_id", userID, "event_id", ev.ID)
			}
		}
	}
}

// Subscribe registers a live subscriber for userID. Callers must
// Unsubscribe when finished.
func (h *Hub) Subscribe(userID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{
		C:      ch,
		id:     h.nextID,
		userID: userID,
		ch:     ch,
		done:   make(chan struct{}),
	}
	if _, ok := h.subs[userID]; !ok {
		h.subs[userID] = make(map[int64]*Subscription)
	}
	h.subs[userID][s.id] = s
	return s
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userSubs, ok := h.subs[s.userID]; ok {
		delete(userSubs, s.id)
		if len(userSubs) == 0 {
			delete(h.subs, s.userID)
		}
	}
	s.close()
}

// Missed returns queued events for userID after afterID.
func (h *Hub) Missed(userID string, afterID int64) []Event {
	return h.queue.After(userID, afterID)
}

// Subscribers returns the number of live subscribers for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// CloseUser drops every subscription and the replay queue for a user.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	userSubs := h.subs[userID]
	delete(h.subs, userID)
	h.mu.Unlock()

	for _, s := range userSubs {
		s.close()
	}
	h.queue.Prune(userID)
	if len(userSubs) > 0 {
		slog.Info("Notification subscribers closed", "user_id", userID, "count", len(userSubs))
	}
}
