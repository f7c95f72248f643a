package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryDedupStore implements DedupStore in memory, for tests and local
// development. Expired records are dropped lazily on read.
type MemoryDedupStore struct {
	mu      sync.Mutex
	records map[string]memoryDedupRecord
}

type memoryDedupRecord struct {
	event     ProcessedEvent
	expiresAt time.Time
}

// NewMemoryDedupStore creates an in-memory deduplication store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{records: make(map[string]memoryDedupRecord)}
}

func (s *MemoryDedupStore) Seen(_ context.Context, externalEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[externalEventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(rec.expiresAt) {
		delete(s.records, externalEventID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryDedupStore) MarkProcessed(_ context.Context, externalEventID, outcome string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[externalEventID]; exists {
		return nil
	}
	s.records[externalEventID] = memoryDedupRecord{
		event: ProcessedEvent{
			ExternalEventID: externalEventID,
			Outcome:         outcome,
			ProcessedAt:     time.Now().UTC(),
		},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Outcome returns the recorded outcome for an event ID, for tests.
func (s *MemoryDedupStore) Outcome(externalEventID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[externalEventID]
	if !ok || time.Now().After(rec.expiresAt) {
		return "", false
	}
	return rec.event.Outcome, true
}
