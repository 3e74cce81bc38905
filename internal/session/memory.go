package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store for single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
}

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked(time.Now())

	entry, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data.Clone(), true
}

func (s *MemoryStore) Set(_ context.Context, key string, data *Data, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked(time.Now())

	s.sessions[key] = &memoryEntry{
		data:      data.Clone(),
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) {
	for key, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
