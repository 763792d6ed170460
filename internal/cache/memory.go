package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a bounded in-process LRU cache.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	clock   func() time.Time
}

// NewMemoryStore builds an LRU store holding at most size entries.
func NewMemoryStore(size int, clock func() time.Time) (*MemoryStore, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{entries: entries, clock: clock}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && s.clock().After(entry.expiresAt) {
		s.entries.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.data...), true, nil
}

// Set stores value under key. A non-positive ttl keeps the entry until it is evicted.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Add(key, s.newEntry(value, ttl))
	return nil
}

func (s *MemoryStore) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries.Peek(key); ok && (entry.expiresAt.IsZero() || !s.clock().After(entry.expiresAt)) {
		return false, nil
	}
	s.entries.Add(key, s.newEntry(value, ttl))
	return true, nil
}

func (s *MemoryStore) newEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	return entry
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.entries.Remove(key)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.entries.Purge()
	return nil
}

// Len reports the number of entries currently held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
