package cache

import (
	"log/slog"
	"sync"
)

// slot holds one cached value and the scopes it belongs to.
type slot struct {
	value  any
	scopes []Scope
}

// Store is a thread-safe in-memory cache keyed by string.
type Store struct {
	logger *slog.Logger

	mu        sync.RWMutex
	slots     map[string]slot
	listeners []func(Scope)

	invalidations int64
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		slots:  make(map[string]slot),
	}
}

// Get returns the value at key and whether the slot exists.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[key]
	return sl.value, ok
}

// Set writes value at key, tagging the slot with the given scopes. Scopes of
// an existing slot are replaced only when new ones are supplied.
func (s *Store) Set(key string, value any, scopes ...Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slots[key]
	sl.value = value
	if len(scopes) > 0 {
		sl.scopes = scopes
	}
	s.slots[key] = sl
}

// Delete removes the slot at key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}

// Restore puts a slot back into the exact state captured by an earlier Get:
// the previous value when it existed, or absence when it did not. Only the
// addressed slot is touched.
func (s *Store) Restore(key string, value any, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !existed {
		delete(s.slots, key)
		return
	}
	sl := s.slots[key]
	sl.value = value
	s.slots[key] = sl
}

// OnInvalidate registers a listener called once per invalidated scope.
// Listeners are invoked outside the store lock.
func (s *Store) OnInvalidate(fn func(Scope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Invalidate drops every slot covered by any of the given scopes and
// notifies listeners so stale data gets refetched.
func (s *Store) Invalidate(scopes ...Scope) {
	if len(scopes) == 0 {
		return
	}

	s.mu.Lock()
	dropped := 0
	for key, sl := range s.slots {
		if slotMatchesAny(sl, scopes) {
			delete(s.slots, key)
			dropped++
		}
	}
	s.invalidations++
	listeners := make([]func(Scope), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.logger.Debug("cache invalidated", "scopes", len(scopes), "dropped", dropped)

	for _, scope := range scopes {
		for _, fn := range listeners {
			fn(scope)
		}
	}
}

// Len returns the number of live slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

func slotMatchesAny(sl slot, scopes []Scope) bool {
	for _, inv := range scopes {
		for _, own := range sl.scopes {
			if inv.Matches(own) {
				return true
			}
		}
	}
	return false
}
