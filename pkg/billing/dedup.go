package billing

import (
	"context"
	"time"
)

// DedupTTL is how long processed event IDs are remembered. It must
// exceed the provider's maximum redelivery window.
const DedupTTL = 14 * 24 * time.Hour

// Processing outcomes recorded alongside the event ID.
const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)

// ProcessedEvent records that an external event was handled.
type ProcessedEvent struct {
	ExternalEventID string    `json:"external_event_id"`
	Outcome         string    `json:"outcome"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// DedupStore remembers processed external event IDs for a bounded
// window. It is the primary defense against at-least-once redelivery
// duplicating side effects.
type DedupStore interface {
	// Seen reports whether the event ID was already processed.
	Seen(ctx context.Context, externalEventID string) (bool, error)

	// MarkProcessed records the event ID with the given outcome. The
	// record expires after ttl.
	MarkProcessed(ctx context.Context, externalEventID, outcome string, ttl time.Duration) error
}
