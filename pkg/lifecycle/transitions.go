package lifecycle

import (
	"fmt"
	"time"

	"github.com/sproutlabs/subsync/pkg/subscription"
)

// applyCommand mutates sub according to the command and reports whether
// anything changed, plus the domain event to emit (nil for silent
// transitions). It is pure over its inputs; persistence and retries
// live in the Processor.
//
// Retention days are always recomputed from the resulting plan via the
// catalog, and plan_changed is emitted iff the retention window
// actually moved.
func applyCommand(sub *subscription.Subscription, cmd Command, now time.Time, catalog subscription.Catalog) (bool, *Event, error) {
	oldRetention := sub.RetentionDays

	switch c := cmd.(type) {
	case PaymentSucceeded:
		if !c.Plan.IsPaid() {
			return false, nil, fmt.Errorf("%w: payment succeeded for non-billable plan %q", ErrInvalidCommand, c.Plan)
		}

		// Reactivation is allowed from every state, including canceled
		// and expired: the payload carries its own period boundaries, so
		// a late or reordered success event still lands correctly.
		sub.Plan = c.Plan
		sub.Status = subscription.StatusActive
		sub.CurrentPeriodStart = &c.PeriodStart
		sub.CurrentPeriodEnd = &c.PeriodEnd
		if c.SubscriptionRef != "" {
			sub.ExternalSubscriptionRef = c.SubscriptionRef
		}
		if c.CustomerRef != "" {
			sub.ExternalCustomerRef = c.CustomerRef
		}
		sub.RetentionDays = catalog.RetentionDays(sub.Plan)

		if sub.RetentionDays != oldRetention {
			return true, newEvent(sub, EventPlanChanged, oldRetention, now), nil
		}
		return true, nil, nil

	case PaymentFailed:
		// Only billed subscriptions can go past due. A failure arriving
		// after cancellation or for a trial is acknowledged and ignored.
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
			return false, nil, nil
		}
		// Each distinct failure re-notifies, including repeat failures
		// while already past due: true provider redeliveries never reach
		// this point, the envelope dedup filters them upstream.
		sub.Status = subscription.StatusPastDue

		return true, newEvent(sub, EventPaymentFailed, oldRetention, now), nil

	case SubscriptionUpdated:
		if c.Canceled {
			if sub.Status == subscription.StatusCanceled {
				return false, nil, nil
			}
			// Immediate cancellation drops the user to the free tier;
			// the retention window is recomputed from the new plan.
			sub.Status = subscription.StatusCanceled
			sub.Plan = subscription.PlanNone
			sub.CancelAtPeriodEnd = false
			sub.RetentionDays = catalog.RetentionDays(sub.Plan)

			if sub.RetentionDays != oldRetention {
				return true, newEvent(sub, EventPlanChanged, oldRetention, now), nil
			}
			return true, nil, nil
		}

		if c.CancelAtPeriodEnd == nil {
			return false, nil, nil
		}

		// The cancel flag only makes sense on a billed, non-terminal
		// subscription.
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
			return false, nil, nil
		}
		if sub.CancelAtPeriodEnd == *c.CancelAtPeriodEnd {
			return false, nil, nil
		}
		sub.CancelAtPeriodEnd = *c.CancelAtPeriodEnd

		if sub.CancelAtPeriodEnd {
			// Informational only: access and retention stay untouched
			// until the period actually ends.
			return true, newEvent(sub, EventSubscriptionCanceled, oldRetention, now), nil
		}
		return true, nil, nil

	case ExpireTrial:
		// Idempotent: expiry of anything but a lapsed trial is a no-op,
		// so a stale NeedsExpiration signal racing a payment loses cleanly.
		if sub.Status != subscription.StatusTrialing || !sub.TrialExpiredAt(now) {
			return false, nil, nil
		}
		sub.Status = subscription.StatusExpired
		sub.Plan = subscription.PlanNone
		sub.RetentionDays = catalog.RetentionDays(sub.Plan)

		if sub.RetentionDays != oldRetention {
			return true, newEvent(sub, EventPlanChanged, oldRetention, now), nil
		}
		return true, newEvent(sub, EventTrialExpired, oldRetention, now), nil

	default:
		return false, nil, fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
	}
}

func newEvent(sub *subscription.Subscription, t EventType, oldRetention int, now time.Time) *Event {
	return &Event{
		UserID:           sub.UserID,
		Type:             t,
		OldRetentionDays: oldRetention,
		NewRetentionDays: sub.RetentionDays,
		OccurredAt:       now,
	}
}
