// Package store provides an in-process key/value store with per-key expiry.
//
// It is the single source of truth for rate-limit counters and usage
// accounting. Values are kept in memory; every mutation is atomic under
// the store mutex.
package store

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is a TTL-bounded key/value store.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	janitorStop chan struct{}
	stopOnce    sync.Once

	// now is swappable for tests.
	now func() time.Time
}

// New creates a store and starts a janitor that sweeps expired keys.
func New() *Store {
	s := &Store{
		entries:     make(map[string]entry),
		janitorStop: make(chan struct{}),
		now:         time.Now,
	}
	go s.janitor(time.Minute)
	return s
}

// Close stops the janitor.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.janitorStop) })
}

// Get returns the value for key, or (nil, false) when absent or expired.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A zero ttl means no expiry.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
}

func (s *Store) set(key string, value any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.entries[key] = entry{value: value, expiresAt: exp}
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// GetInt returns the integer stored under key, or 0 when absent.
func (s *Store) GetInt(key string) int {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

// Incr adds delta to the integer under key and refreshes its ttl,
// returning the new value. Missing keys start at zero.
func (s *Store) Incr(key string, delta int, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := 0
	if e, ok := s.entries[key]; ok && !e.expired(s.now()) {
		cur, _ = e.value.(int)
	}
	cur += delta
	s.set(key, cur, ttl)
	return cur
}

// DecrFloor subtracts one from the integer under key without going below
// zero, refreshing its ttl. Returns the new value.
func (s *Store) DecrFloor(key string, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := 0
	if e, ok := s.entries[key]; ok && !e.expired(s.now()) {
		cur, _ = e.value.(int)
	}
	if cur > 0 {
		cur--
	}
	s.set(key, cur, ttl)
	return cur
}

// AddFloat adds delta to the float accumulator under key and refreshes
// its ttl, returning the new value. Missing keys start at zero.
func (s *Store) AddFloat(key string, delta float64, ttl time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := 0.0
	if e, ok := s.entries[key]; ok && !e.expired(s.now()) {
		cur, _ = e.value.(float64)
	}
	cur += delta
	s.set(key, cur, ttl)
	return cur
}

// GetFloat returns the float stored under key, or 0 when absent.
func (s *Store) GetFloat(key string) float64 {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	f, _ := v.(float64)
	return f
}

// SetNX stores value only when the key is absent or expired. Returns
// true when the value was stored. Used as an insert-if-absent marker.
func (s *Store) SetNX(key string, value any, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !e.expired(s.now()) {
		return false
	}
	s.set(key, value, ttl)
	return true
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}
