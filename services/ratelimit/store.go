package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Attempt is the outcome of a single Store.Attempt call.
type Attempt struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Store holds fixed-window attempt counters. Attempt must be atomic: when
// the live count is already at max it reports Allowed=false and leaves the
// counter untouched, otherwise it increments, opening a new window of
// length decay when none is live.
type Store interface {
	Attempt(ctx context.Context, key string, max int, decay time.Duration) (Attempt, error)
	Reset(ctx context.Context, key string) error
}

const pruneInterval = time.Minute

type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]*entry
	clock     func() time.Time
	lastPrune time.Time
}

type entry struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]*entry),
		clock: time.Now,
	}
}

func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Attempt(_ context.Context, key string, max int, decay time.Duration) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.pruneLocked(now)

	e, exists := s.data[key]
	if !exists || !now.Before(e.resetTime) {
		e = &entry{resetTime: now.Add(decay)}
		s.data[key] = e
	}

	if e.count >= max {
		return Attempt{Allowed: false, Count: e.count, ResetAt: e.resetTime}, nil
	}

	e.count++
	return Attempt{Allowed: true, Count: e.count, ResetAt: e.resetTime}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Len reports the number of tracked buckets, including expired ones not yet pruned.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// pruneLocked drops expired buckets at most once per pruneInterval, so
// eviction piggybacks on traffic instead of a background ticker.
func (s *MemoryStore) pruneLocked(now time.Time) {
	if now.Sub(s.lastPrune) < pruneInterval {
		return
	}
	s.lastPrune = now

	for key, e := range s.data {
		if !now.Before(e.resetTime) {
			delete(s.data, key)
		}
	}
}
