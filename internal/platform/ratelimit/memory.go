package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps per-key request timestamps in a mutex-guarded map.
// Entries are pruned lazily on each check and periodically by the prune
// loop, to bound memory. Scoped to one process lifetime.
type MemoryStore struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	hits    map[string][]time.Time
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

func NewMemoryStore(window time.Duration, max int) *MemoryStore {
	return &MemoryStore{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windowStart := now.Add(-s.window)

	valid := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= s.max {
		s.hits[key] = valid
		retry := s.window - now.Sub(valid[0])
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}

	s.hits[key] = append(valid, now)
	return true, 0, nil
}

// StartPruning runs the periodic sweep that drops keys with no recent
// hits. Call Stop to terminate it.
func (s *MemoryStore) StartPruning(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.prune()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *MemoryStore) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}

func (s *MemoryStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowStart := s.now().Add(-s.window)
	for key, times := range s.hits {
		valid := times[:0]
		for _, t := range times {
			if t.After(windowStart) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(s.hits, key)
		} else {
			s.hits[key] = valid
		}
	}
}

var _ Store = (*MemoryStore)(nil)
