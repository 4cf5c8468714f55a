package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local sliding-window log. Expired timestamps are
// pruned on access and idle keys are swept once per window.
type MemoryStore struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, limit int) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSweep.IsZero() {
		s.lastSweep = now
	} else if now.Sub(s.lastSweep) >= window {
		s.sweepLocked(now, window)
	}

	live := prune(s.hits[key], now.Add(-window))
	allowed := len(live) < limit
	if allowed {
		live = append(live, now)
	}
	if len(live) == 0 {
		delete(s.hits, key)
		return Usage{Allowed: allowed}, nil
	}
	s.hits[key] = live

	return Usage{Allowed: allowed, Count: len(live), Oldest: live[0]}, nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func (s *MemoryStore) sweepLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for key, ts := range s.hits {
		live := prune(ts, cutoff)
		if len(live) == 0 {
			delete(s.hits, key)
			continue
		}
		s.hits[key] = live
	}
	s.lastSweep = now
}

// prune drops timestamps at or before cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
