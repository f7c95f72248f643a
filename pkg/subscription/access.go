package subscription

import "time"

// Decision is the result of access evaluation.
type Decision struct {
	Level  AccessLevel
	Reason string // empty when Level is AccessFull

	// NeedsExpiration signals that the subscription is a trial whose
	// window has lapsed without a formal transition. Trial expiry is
	// lazy: the caller is expected to trigger the expiry transition on
	// the next access instead of a scheduled sweep running per-user
	// timers. A user who never returns is never formally transitioned,
	// which is acceptable because evaluation already denies full access.
	NeedsExpiration bool
}

// Allowed reports whether the user gets premium access.
func (d Decision) Allowed() bool {
	return d.Level == AccessFull
}

// EvaluateAccess derives the access level from a subscription snapshot
// and the current time. It is pure and I/O-free; callers inject the
// clock and the grace window from the catalog.
//
// Clauses are evaluated in order:
//   - no record: billing_only
//   - trialing before trial end: full
//   - trialing at/after trial end: billing_only + NeedsExpiration
//   - active: full (cancel_at_period_end keeps full access until the
//     period actually ends)
//   - past_due within grace of the period end: full, else billing_only
//   - canceled/expired: billing_only
//   - unrecognized status: none
func EvaluateAccess(sub *Subscription, now time.Time, grace time.Duration) Decision {
	if sub == nil {
		return Decision{Level: AccessBillingOnly, Reason: ReasonNoSubscription}
	}

	switch sub.Status {
	case StatusTrialing:
		if sub.TrialEnd != nil && now.Before(*sub.TrialEnd) {
			return Decision{Level: AccessFull}
		}
		return Decision{
			Level:           AccessBillingOnly,
			Reason:          ReasonTrialExpired,
			NeedsExpiration: true,
		}

	case StatusActive:
		return Decision{Level: AccessFull}

	case StatusPastDue:
		if sub.CurrentPeriodEnd != nil && !now.After(sub.CurrentPeriodEnd.Add(grace)) {
			return Decision{Level: AccessFull}
		}
		return Decision{Level: AccessBillingOnly, Reason: ReasonPaymentPastDue}

	case StatusCanceled:
		return Decision{Level: AccessBillingOnly, Reason: ReasonSubscriptionCanceled}

	case StatusExpired:
		return Decision{Level: AccessBillingOnly, Reason: ReasonSubscriptionExpired}
	}

	// An unrecognized status denies everything. billing_only is reserved
	// for states we understand and for outages; a record this code
	// cannot interpret gets no access until an operator looks at it.
	return Decision{Level: AccessNone, Reason: ReasonStateUnavailable}
}
