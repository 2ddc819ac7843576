// Package ratelimit implements fixed-window request limits over a pluggable
// counter store.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
)

// Store counts hits per key within a fixed window
type Store interface {
	// Hit increments the counter for key, starting a new window of the given
	// length when none is active, and returns the count and window end.
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Counts are per process, so
// several instances behind a load balancer each enforce their own limit and
// the effective limit grows with the instance count. Use RedisStore there.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Hit implements Store. Expired entries are replaced on access.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt, nil
}

// Sweep removes expired counters and returns how many were dropped
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live counters
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// StartSweeper sweeps expired counters every interval until ctx is done
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Debugf("Rate limit sweeper removed %d expired counters", n)
				}
			}
		}
	}()
}
