package notifications

import (
	"context"
	"sync"
)

// MemoryStorage implements Storage in memory, for tests and local
// development.
type MemoryStorage struct {
	mu      sync.Mutex
	records map[string]Notification
}

// NewMemoryStorage creates an in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]Notification)}
}

func (s *MemoryStorage) Create(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[n.ID]; exists {
		return ErrNotificationAlreadyExists
	}
	s.records[n.ID] = n
	return nil
}

// Get returns a notification by ID, for tests.
func (s *MemoryStorage) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.records[id]
	return n, ok
}

// All returns all notifications, for tests.
func (s *MemoryStorage) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.records))
	for _, n := range s.records {
		out = append(out, n)
	}
	return out
}
