package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "billing:event:"

// RedisDedupStore implements DedupStore on Redis. Key expiry gives the
// bounded retention window for free; the stored value carries the
// outcome for operator inspection.
type RedisDedupStore struct {
	client *redis.Client
}

// NewRedisDedupStore creates a Redis-backed deduplication store.
func NewRedisDedupStore(client *redis.Client) (*RedisDedupStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	return &RedisDedupStore{client: client}, nil
}

func (s *RedisDedupStore) Seen(ctx context.Context, externalEventID string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKeyPrefix+externalEventID).Result()
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisDedupStore) MarkProcessed(ctx context.Context, externalEventID, outcome string, ttl time.Duration) error {
	record := ProcessedEvent{
		ExternalEventID: externalEventID,
		Outcome:         outcome,
		ProcessedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal processed event: %w", err)
	}

	// SetNX keeps the first outcome if two routers race on the same
	// event; both saw it unprocessed, both applied an idempotent
	// transition, either record is accurate.
	if err := s.client.SetNX(ctx, dedupKeyPrefix+externalEventID, data, ttl).Err(); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}
	return nil
}
