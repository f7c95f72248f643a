package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

// CommandProcessor applies a decoded transition command. Satisfied by
// lifecycle.Processor.
type CommandProcessor interface {
	Apply(ctx context.Context, userID uuid.UUID, cmd lifecycle.Command) (*subscription.Subscription, error)
}

// Router handles inbound billing events: deduplicates, decodes into the
// closed command union, and dispatches to the transition processor.
// Delivery is at least once; a transient failure is surfaced to the
// caller so the event stays unacknowledged and is redelivered.
type Router struct {
	dedup     DedupStore
	processor CommandProcessor
	log       *slog.Logger
	ttl       time.Duration
}

// RouterOption configures optional Router settings.
type RouterOption func(*Router)

func WithDedupTTL(ttl time.Duration) RouterOption {
	return func(r *Router) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithRouterLogger(log *slog.Logger) RouterOption {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRouter creates a Router. Panics on nil required dependencies to
// fail fast during initialization.
func NewRouter(dedup DedupStore, processor CommandProcessor, opts ...RouterOption) *Router {
	if dedup == nil {
		panic("billing: dedup store is required")
	}
	if processor == nil {
		panic("billing: command processor is required")
	}

	r := &Router{
		dedup:     dedup,
		processor: processor,
		log:       slog.Default(),
		ttl:       DedupTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound billing event. A nil return acknowledges
// the event; a non-nil return withholds acknowledgment so the provider
// redelivers. Malformed or unknown events are acknowledged and dropped:
// retrying cannot fix them, and they must never block the pipeline.
func (r *Router) Handle(ctx context.Context, e EventEnvelope) error {
	if err := e.Validate(); err != nil {
		r.log.WarnContext(ctx, "dropping invalid event envelope",
			slog.String("external_event_id", e.ExternalEventID),
			slog.String("error", err.Error()))
		return nil
	}

	seen, err := r.dedup.Seen(ctx, e.ExternalEventID)
	if err != nil {
		return fmt.Errorf("dedup check for %s: %w", e.ExternalEventID, err)
	}
	if seen {
		r.log.DebugContext(ctx, "duplicate event delivery, skipping",
			slog.String("external_event_id", e.ExternalEventID),
			slog.String("type", string(e.Type)))
		return nil
	}

	if !e.Type.Known() {
		r.log.InfoContext(ctx, "ignoring unsupported event type",
			slog.String("external_event_id", e.ExternalEventID),
			slog.String("type", string(e.Type)))
		return r.mark(ctx, e.ExternalEventID, OutcomeIgnored)
	}

	userID, cmd, err := decodeCommand(e)
	if err != nil {
		r.log.WarnContext(ctx, "dropping undecodable event",
			slog.String("external_event_id", e.ExternalEventID),
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
		return r.mark(ctx, e.ExternalEventID, OutcomeRejected)
	}

	if _, err := r.processor.Apply(ctx, userID, cmd); err != nil {
		if permanent(err) {
			r.log.WarnContext(ctx, "event rejected by transition processor",
				slog.String("external_event_id", e.ExternalEventID),
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
			return r.mark(ctx, e.ExternalEventID, OutcomeRejected)
		}
		// Transient: no dedup record, so redelivery retries the event.
		return fmt.Errorf("apply %s for user %s: %w", e.Type, userID, err)
	}

	return r.mark(ctx, e.ExternalEventID, OutcomeApplied)
}

// mark records the dedup entry. The transition (if any) already landed;
// a recording failure only widens the duplicate window, and consumers
// are idempotent, so it is logged rather than surfaced.
func (r *Router) mark(ctx context.Context, externalEventID, outcome string) error {
	if err := r.dedup.MarkProcessed(ctx, externalEventID, outcome, r.ttl); err != nil {
		r.log.WarnContext(ctx, "failed to record processed event",
			slog.String("external_event_id", externalEventID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
	}
	return nil
}

// permanent reports whether the processor error cannot be fixed by
// redelivery.
func permanent(err error) bool {
	return errors.Is(err, lifecycle.ErrInvalidCommand) ||
		errors.Is(err, subscription.ErrSubscriptionNotFound)
}
