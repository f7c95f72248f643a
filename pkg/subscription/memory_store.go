package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation with the same
// optimistic-concurrency semantics as the Postgres store. Suitable for
// tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[uuid.UUID]*Subscription),
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[sub.UserID]; exists {
		return ErrSubscriptionAlreadyExists
	}

	stored := sub.Clone()
	stored.Version = 1
	s.subs[sub.UserID] = stored
	sub.Version = stored.Version
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, sub *Subscription, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[sub.UserID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	stored := sub.Clone()
	stored.Version = expectedVersion + 1
	s.subs[sub.UserID] = stored
	sub.Version = stored.Version
	return nil
}
