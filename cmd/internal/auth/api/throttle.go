package authapi

import (
	"context"
	"sync"
	"time"
)

// AttemptLimiter decides whether another credential attempt from key is
// allowed. Implementations record the attempt when they allow it.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, error)
}

// throttle is the in-process AttemptLimiter: a per-key sliding window.
type throttle struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
	sweeps int
}

// newThrottle returns nil when limit or window is non-positive, which
// disables limiting.
func newThrottle(limit int, window time.Duration) *throttle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &throttle{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an attempt by key at now is permitted, and records it
// when it is.
func (t *throttle) Allow(_ context.Context, key string, now time.Time) (bool, error) {
	if t == nil {
		return true, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cut := now.Add(-t.window)
	kept := prune(t.events[key], cut)

	t.sweeps++
	if t.sweeps >= 1024 {
		t.sweeps = 0
		t.evictIdle(cut)
	}

	if len(kept) >= t.limit {
		t.events[key] = kept
		return false, nil
	}
	t.events[key] = append(kept, now)
	return true, nil
}

func (t *throttle) evictIdle(cut time.Time) {
	for k, ev := range t.events {
		// prune compacts in place; the shorter slice must be stored back.
		if kept := prune(ev, cut); len(kept) == 0 {
			delete(t.events, k)
		} else {
			t.events[k] = kept
		}
	}
}

func prune(ev []time.Time, cut time.Time) []time.Time {
	dst := ev[:0]
	for _, ts := range ev {
		if ts.After(cut) {
			dst = append(dst, ts)
		}
	}
	return dst
}
