package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sproutlabs/subsync/pkg/clock"
	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

// Access is the evaluation result handed to request-serving code.
type Access struct {
	Allowed bool                     `json:"access_allowed"`
	Level   subscription.AccessLevel `json:"access_level"`
	Reason  *string                  `json:"restriction_reason"`
}

// Evaluator answers access questions for authenticated users. It reads
// the subscription store, applies the pure access rules, and lazily
// triggers trial expiry when evaluation detects a lapsed trial. It
// never touches the queue.
type Evaluator struct {
	processor *lifecycle.Processor
	catalog   subscription.Catalog
	clock     clock.Clock
	log       *slog.Logger
}

// NewEvaluator creates an access evaluator.
func NewEvaluator(processor *lifecycle.Processor, catalog subscription.Catalog, clk clock.Clock, log *slog.Logger) *Evaluator {
	if processor == nil {
		panic("engine: processor is required")
	}
	if clk == nil {
		panic("engine: clock is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Evaluator{
		processor: processor,
		catalog:   catalog,
		clock:     clk,
		log:       log,
	}
}

// Evaluate returns the user's access level. A first-time user gets a
// trial record created on the spot, which is what "created on first
// activity" means in practice. When the store is unreachable the
// evaluator fails closed to billing_only: granting premium access
// during an outage is the unacceptable failure mode.
func (e *Evaluator) Evaluate(ctx context.Context, userID uuid.UUID) Access {
	sub, err := e.processor.EnsureTrial(ctx, userID)
	if err != nil {
		e.log.ErrorContext(ctx, "subscription state unavailable, failing closed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return toAccess(subscription.Decision{
			Level:  subscription.AccessBillingOnly,
			Reason: subscription.ReasonStateUnavailable,
		})
	}

	now := e.clock.Now()
	decision := subscription.EvaluateAccess(sub, now, e.catalog.GraceWindow)

	if decision.NeedsExpiration {
		// Formalize the lapsed trial through the same conditional-write
		// path as provider-driven transitions. The returned decision is
		// kept as-is (billing_only, trial_expired); access is already
		// denied either way, so a failure here is logged and absorbed
		// and the next evaluation retries.
		if _, err := e.processor.Apply(ctx, userID, lifecycle.ExpireTrial{}); err != nil {
			e.log.WarnContext(ctx, "lazy trial expiry failed",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
		}
	}

	return toAccess(decision)
}

func toAccess(d subscription.Decision) Access {
	a := Access{
		Allowed: d.Allowed(),
		Level:   d.Level,
	}
	if d.Reason != "" {
		reason := d.Reason
		a.Reason = &reason
	}
	return a
}
