// In-memory Store implementation.
//
// Information Hiding:
// - Map storage and the radix prefix index are hidden behind Store
// - Thread safety via RWMutex
// - Expiry is lazy: entries are dropped when a lookup or walk finds them
//   past their deadline

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/armon/go-radix"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements Store with an in-process map. A radix tree mirrors
// the key set so prefix scans do not walk the whole map. Data is lost when
// the process terminates.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]entry
	index *radix.Tree
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]entry),
		index: radix.New(),
		now:   time.Now,
	}
}

// Get returns the value for key, treating expired entries as misses.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		s.mu.Lock()
		// Re-check under the write lock; the entry may have been replaced.
		if e, ok := s.items[key]; ok && e.expired(s.now()) {
			s.remove(key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true, nil
}

// Set stores a value under key. A zero or negative TTL stores without expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	e := entry{value: copied}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = e
	s.index.Insert(key, nil)
	return nil
}

// Delete removes keys, returning how many were present.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if _, ok := s.items[key]; ok {
			s.remove(key)
			removed++
		}
	}
	return removed, nil
}

// Keys returns all live keys with the given prefix, dropping any expired
// entries it walks over.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var keys []string
	var expired []string
	s.index.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		if e, ok := s.items[key]; ok && e.expired(now) {
			expired = append(expired, key)
			return false
		}
		keys = append(keys, key)
		return false
	})
	for _, key := range expired {
		s.remove(key)
	}
	return keys, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, e := range s.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// remove deletes from both the map and the index; callers hold the write lock.
func (s *MemoryStore) remove(key string) {
	delete(s.items, key)
	s.index.Delete(key)
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
