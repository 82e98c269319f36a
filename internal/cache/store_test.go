package cache

import (
	"testing"
	"time"
)

func TestGetMissesUntilSet(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss on empty store")
	}
	s.Set("k", 42)
	v, ok := s.Get("k")
	if !ok || v.(int) != 42 {
		t.Fatalf("Get = %v, %v; want 42, true", v, ok)
	}
}

func TestInvalidateStalesAndBumpsVersion(t *testing.T) {
	s := NewStore()
	s.Set("k", "fresh")
	if got := s.Version("k"); got != 0 {
		t.Fatalf("initial version = %d, want 0", got)
	}

	s.Invalidate("k")
	if _, ok := s.Get("k"); ok {
		t.Error("invalidated key must miss")
	}
	if got := s.Version("k"); got != 1 {
		t.Errorf("version after invalidate = %d, want 1", got)
	}

	// Refetch path: a new Set makes the key fresh again without touching
	// the version.
	s.Set("k", "refetched")
	v, ok := s.Get("k")
	if !ok || v.(string) != "refetched" {
		t.Fatalf("Get after refetch = %v, %v", v, ok)
	}
	if got := s.Version("k"); got != 1 {
		t.Errorf("Set must not change the version, got %d", got)
	}
}

func TestInvalidateUnknownKeyIsRecorded(t *testing.T) {
	s := NewStore()
	s.Invalidate("later")
	if got := s.Version("later"); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	s := NewStore()
	s.Set("list:1:tasks:2024-01-01", "a")
	s.Set("list:1:tasks:2024-01-02", "b")
	s.Set("list:2:tasks:2024-01-01", "c")

	s.InvalidatePrefix("list:1:tasks:")

	if _, ok := s.Get("list:1:tasks:2024-01-01"); ok {
		t.Error("dated view 1 should be stale")
	}
	if _, ok := s.Get("list:1:tasks:2024-01-02"); ok {
		t.Error("dated view 2 should be stale")
	}
	if _, ok := s.Get("list:2:tasks:2024-01-01"); !ok {
		t.Error("other list's view must stay fresh")
	}
}

func TestWatchSignalsOnInvalidate(t *testing.T) {
	s := NewStore()
	ch := s.Watch("k")

	s.Invalidate("k")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher was not signalled")
	}

	// Coalescing: two invalidations while nobody reads yield one pending
	// signal, not a blocked invalidator.
	s.Invalidate("k")
	s.Invalidate("k")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher lost the coalesced signal")
	}

	s.Unwatch("k", ch)
	s.Invalidate("k")
	select {
	case <-ch:
		t.Fatal("unwatched channel still receives")
	case <-time.After(50 * time.Millisecond):
	}
}
