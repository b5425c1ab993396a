package cache

import (
	"sync"
	"time"
)

// memoryEntry holds a cached value with its timestamp.
type memoryEntry struct {
	value     string
	timestamp time.Time
}

// InMemoryStore is a thread-safe in-memory store with TTL support.
type InMemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	ttl     time.Duration
}

// NewInMemoryStore creates a new in-memory store with the specified TTL.
// If ttlSeconds is 0 or negative, entries never expire.
func NewInMemoryStore(ttlSeconds int) *InMemoryStore {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttlSeconds <= 0 {
		ttl = 0 // No expiration
	}
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get retrieves a value from the store.
// Returns the value and true if found and not expired, empty string and false otherwise.
func (s *InMemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	// Check TTL if enabled
	if s.ttl > 0 && time.Since(entry.timestamp) > s.ttl {
		// Entry expired - clean it up
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false
	}

	return entry.value, true
}

// Set stores a value.
func (s *InMemoryStore) Set(key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:     value,
		timestamp: time.Now(),
	}
	return nil
}

// Len returns the number of entries in the store (including expired ones).
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Entries returns all non-expired entries as key-value pairs.
func (s *InMemoryStore) Entries() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	now := time.Now()

	for key, entry := range s.entries {
		if s.ttl > 0 && now.Sub(entry.timestamp) > s.ttl {
			continue
		}
		result[key] = entry.value
	}

	return result
}

var _ ClearableStore = (*InMemoryStore)(nil)
