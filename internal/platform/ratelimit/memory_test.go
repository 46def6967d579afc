package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreAllowsUpToMax(t *testing.T) {
	s := NewMemoryStore(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := s.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d blocked below the limit", i+1)
		}
	}

	ok, retry, err := s.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fourth request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, window]", retry)
	}
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	s := NewMemoryStore(time.Minute, 1)
	ctx := context.Background()

	if ok, _, _ := s.Allow(ctx, "a"); !ok {
		t.Fatal("first hit on key a blocked")
	}
	if ok, _, _ := s.Allow(ctx, "b"); !ok {
		t.Fatal("first hit on key b blocked")
	}
	if ok, _, _ := s.Allow(ctx, "a"); ok {
		t.Fatal("second hit on key a should be blocked")
	}
}

func TestMemoryStoreWindowSlides(t *testing.T) {
	s := NewMemoryStore(time.Minute, 1)
	ctx := context.Background()

	current := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	if ok, _, _ := s.Allow(ctx, "k"); !ok {
		t.Fatal("first hit blocked")
	}
	if ok, _, _ := s.Allow(ctx, "k"); ok {
		t.Fatal("second hit inside window should be blocked")
	}

	current = current.Add(61 * time.Second)
	if ok, _, _ := s.Allow(ctx, "k"); !ok {
		t.Fatal("hit after the window expired should be allowed")
	}
}

func TestMemoryStorePruneDropsIdleKeys(t *testing.T) {
	s := NewMemoryStore(time.Minute, 5)
	ctx := context.Background()

	current := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	s.Allow(ctx, "idle")
	current = current.Add(2 * time.Minute)
	s.prune()

	s.mu.Lock()
	_, exists := s.hits["idle"]
	s.mu.Unlock()
	if exists {
		t.Error("idle key survived pruning")
	}
}
