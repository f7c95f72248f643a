package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sproutlabs/subsync/pkg/clock"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

// defaultMaxAttempts bounds optimistic-concurrency retries per Apply
// call. Exhaustion surfaces as ErrTooManyConflicts, a transient error:
// the caller withholds acknowledgment and relies on redelivery.
const defaultMaxAttempts = 3

// Processor applies transition commands to the subscription store. It
// is the only writer of subscription state. Every transition goes
// through a version-conditioned write; a conflict restarts the entire
// decision from a fresh read because the decision may depend on the
// stale state.
type Processor struct {
	store       subscription.Store
	catalog     subscription.Catalog
	sink        EventSink
	clock       clock.Clock
	log         *slog.Logger
	maxAttempts int
}

// ProcessorOption configures optional Processor settings.
type ProcessorOption func(*Processor)

func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProcessor creates a Processor. Panics on nil required dependencies
// to fail fast during initialization.
func NewProcessor(store subscription.Store, catalog subscription.Catalog, sink EventSink, clk clock.Clock, opts ...ProcessorOption) *Processor {
	if store == nil {
		panic("lifecycle: subscription store is required")
	}
	if sink == nil {
		panic("lifecycle: event sink is required")
	}
	if clk == nil {
		panic("lifecycle: clock is required")
	}

	p := &Processor{
		store:       store,
		catalog:     catalog,
		sink:        sink,
		clock:       clk,
		log:         slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureTrial returns the user's subscription, creating a fresh trial
// record on first activity. Concurrent first requests race on Create;
// the loser re-reads the winner's record.
func (p *Processor) EnsureTrial(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := p.store.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, err
	}

	now := p.clock.Now()
	trialEnd := now.AddDate(0, 0, p.catalog.TrialDays)
	sub = &subscription.Subscription{
		UserID:        userID,
		Plan:          subscription.PlanTrial,
		Status:        subscription.StatusTrialing,
		TrialStart:    &now,
		TrialEnd:      &trialEnd,
		RetentionDays: p.catalog.RetentionDays(subscription.PlanTrial),
		UpdatedAt:     now,
	}

	if err := p.store.Create(ctx, sub); err != nil {
		if errors.Is(err, subscription.ErrSubscriptionAlreadyExists) {
			return p.store.Get(ctx, userID)
		}
		return nil, err
	}

	p.log.InfoContext(ctx, "trial subscription created",
		slog.String("user_id", userID.String()),
		slog.Time("trial_end", trialEnd))

	return sub, nil
}

// Apply executes a transition command for the user. It re-reads, redoes
// the decision, and rewrites on version conflicts, up to the attempt
// budget. The domain event is emitted before the write makes the
// transition observable: if the write then fails, the inbound event
// stays unacknowledged and redelivery recomputes and re-emits, whereas
// an emit-after-write ordering would lose the event for good because
// the redelivered command reads the already-updated record and finds
// nothing left to emit. Emission is therefore at-least-once; all
// attempts of one call share an OccurredAt, so duplicates collapse on
// the event key and consumers stay idempotent.
func (p *Processor) Apply(ctx context.Context, userID uuid.UUID, cmd Command) (*subscription.Subscription, error) {
	var lastErr error
	now := p.clock.Now()

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		sub, err := p.fetch(ctx, userID, cmd)
		if err != nil {
			return nil, err
		}

		next := sub.Clone()
		changed, evt, err := applyCommand(next, cmd, now, p.catalog)
		if err != nil {
			return nil, err
		}
		if !changed {
			return sub, nil
		}
		next.UpdatedAt = now

		if evt != nil {
			if err := p.sink.Emit(ctx, *evt); err != nil {
				return nil, fmt.Errorf("emit %s for user %s: %w", evt.Type, userID, err)
			}
		}

		if err := p.store.Update(ctx, next, sub.Version); err != nil {
			if errors.Is(err, subscription.ErrVersionConflict) {
				// Lost the race: restart the whole decision from a
				// fresh read, never just the write.
				lastErr = err
				p.log.DebugContext(ctx, "transition conflict, retrying",
					slog.String("user_id", userID.String()),
					slog.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}

		p.log.InfoContext(ctx, "transition applied",
			slog.String("user_id", userID.String()),
			slog.String("status", string(next.Status)),
			slog.String("plan", string(next.Plan)),
			slog.Int64("version", next.Version))

		return next, nil
	}

	return nil, errors.Join(ErrTooManyConflicts, lastErr)
}

// fetch loads the subscription, bootstrapping a record for a first-time
// payer whose trial record was never created (e.g. checkout completed
// on another device before first app activity).
func (p *Processor) fetch(ctx context.Context, userID uuid.UUID, cmd Command) (*subscription.Subscription, error) {
	sub, err := p.store.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, err
	}

	if _, ok := cmd.(PaymentSucceeded); !ok {
		return nil, err
	}

	return p.EnsureTrial(ctx, userID)
}
