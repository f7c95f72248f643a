package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event a transition produced.
type EventType string

const (
	EventPlanChanged          EventType = "plan_changed"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventTrialExpired         EventType = "trial_expired"
	EventPaymentFailed        EventType = "payment_failed"
)

// Event is the domain event emitted once per applied transition and
// delivered at least once to consumers. Consumers must be idempotent on
// (UserID, Type, OccurredAt).
type Event struct {
	UserID           uuid.UUID `json:"user_id"`
	Type             EventType `json:"event_type"`
	OldRetentionDays int       `json:"old_retention_days"`
	NewRetentionDays int       `json:"new_retention_days"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// DedupKey returns the identity consumers key their conditional writes
// on. Nanosecond precision keeps two distinct same-type events for one
// user within the same second from colliding.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s:%s:%d", e.UserID, e.Type, e.OccurredAt.UnixNano())
}

// RetentionChanged reports whether the transition altered the user's
// retention window.
func (e Event) RetentionChanged() bool {
	return e.OldRetentionDays != e.NewRetentionDays
}

// EventSink receives domain events produced by the processor. The
// service layer wires it to the fan-out queue; tests use an in-memory
// recorder.
type EventSink interface {
	Emit(ctx context.Context, evt Event) error
}
