// Package cache holds the client's shared read views. Mutations never patch
// a cached value in place; they invalidate its key and the next reader
// refetches from the backend.
package cache

import (
	"strings"
	"sync"
)

type entry struct {
	value   any
	version uint64
	fresh   bool
}

// Store is a keyed read-view store with explicit invalidation. Every key
// carries a monotonic version that bumps on each invalidation, so callers
// can detect that a value they fetched has been superseded.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	watchers map[string][]chan struct{}
}

func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		watchers: make(map[string][]chan struct{}),
	}
}

// Get returns the cached value for key if it is fresh.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || !e.fresh {
		return nil, false
	}
	return e.value, true
}

// Set stores a freshly fetched value under key.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.value = value
	e.fresh = true
}

// Version returns the key's invalidation counter. A key that was never
// invalidated reports 0.
func (s *Store) Version(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return e.version
	}
	return 0
}

// Invalidate marks the given keys stale and wakes their watchers. Keys that
// were never set still record the invalidation, so a later Set/Get pair
// cannot resurrect a value fetched before the invalidation.
func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.invalidateLocked(key)
	}
}

// InvalidatePrefix marks every key with the given prefix stale. Collection
// views keyed by query parameters (a list's tasks per date) share a prefix
// so one mutation can stale them all.
func (s *Store) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.invalidateLocked(key)
		}
	}
	for key := range s.watchers {
		if _, tracked := s.entries[key]; !tracked && strings.HasPrefix(key, prefix) {
			s.invalidateLocked(key)
		}
	}
}

func (s *Store) invalidateLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.fresh = false
	e.value = nil
	e.version++
	for _, ch := range s.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch returns a channel that receives a signal whenever key is
// invalidated. The channel has a one-slot buffer; a slow watcher coalesces
// signals instead of blocking the invalidator.
func (s *Store) Watch(key string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()
	return ch
}

// Unwatch removes a channel previously returned by Watch.
func (s *Store) Unwatch(key string, ch <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers := s.watchers[key]
	for i, w := range watchers {
		if w == ch {
			s.watchers[key] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(s.watchers[key]) == 0 {
		delete(s.watchers, key)
	}
}
