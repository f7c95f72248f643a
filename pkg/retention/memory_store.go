package retention

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory, for tests and local
// development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record

	// failOnce and failAlways hold record IDs whose update attempts
	// fail, for exercising partial-failure paths in tests.
	failOnce   map[string]bool
	failAlways map[string]bool
}

// NewMemoryStore creates an in-memory retention store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*Record),
		failOnce:   make(map[string]bool),
		failAlways: make(map[string]bool),
	}
}

// Add inserts a record.
func (s *MemoryStore) Add(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.records[rec.RecordID] = &r
}

// FailNext makes the next expiry update for the record fail once.
func (s *MemoryStore) FailNext(recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnce[recordID] = true
}

// FailAlways makes every expiry update for the record fail.
func (s *MemoryStore) FailAlways(recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAlways[recordID] = true
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(recordID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (s *MemoryStore) BulkSetExpiry(_ context.Context, userID uuid.UUID, days int) (Result, error) {
	if days <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidRetentionDays, days)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		if rec.UserID == userID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var result Result
	for _, id := range ids {
		rec := s.records[id]
		target := rec.CreatedAt.Add(time.Duration(days) * 24 * time.Hour)
		if rec.ExpiresAt.Equal(target) {
			continue
		}
		if s.failAlways[id] {
			result.Failed = append(result.Failed, id)
			continue
		}
		if s.failOnce[id] {
			delete(s.failOnce, id)
			result.Failed = append(result.Failed, id)
			continue
		}
		rec.ExpiresAt = target
		result.Updated++
	}

	return result, nil
}
