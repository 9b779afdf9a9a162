package companion

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a per-user sliding window rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter. A limit <= 0 disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the window.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.recent(key, now)

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

func (r *RateLimiter) recent(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// Evict removes keys with no requests inside the window.
func (r *RateLimiter) Evict() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key := range r.requests {
		fresh := r.recent(key, now)
		if len(fresh) == 0 {
			delete(r.requests, key)
		} else {
			r.requests[key] = fresh
		}
	}
}

// StartEviction runs Evict once per window until ctx is done, preventing
// unbounded memory growth.
func (r *RateLimiter) StartEviction(ctx context.Context) {
	if r.limit <= 0 || r.window <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Evict()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Forget drops all recorded requests for key.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, key)
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
