package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int64
}

// MemoryStore keeps fixed-window counters in process memory. A window opens
// with the first hit of a key and closes after the window length; expired
// buckets are swept lazily from Incr.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		buckets:   make(map[string]*bucket),
		now:       now,
		lastSweep: now(),
	}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= window {
		s.sweep(now, window)
	}

	b, ok := s.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		b = &bucket{start: now}
		s.buckets[key] = b
	}
	b.count++

	return b.count, b.start.Add(window).Sub(now), nil
}

// Len reports the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	for key, b := range s.buckets {
		if now.Sub(b.start) >= window {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}
