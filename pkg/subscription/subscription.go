package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the per-user plan/status record. Each user has
// exactly one subscription, created on first activity and mutated only
// by the transition processor. Version implements optimistic
// concurrency: every conditional write increments it, and a write
// conditioned on a stale version fails with ErrVersionConflict.
type Subscription struct {
	UserID                  uuid.UUID
	Plan                    Plan
	Status                  Status
	TrialStart              *time.Time // set only while the user is or was on a trial
	TrialEnd                *time.Time
	CurrentPeriodStart      *time.Time // set only for provider-billed plans
	CurrentPeriodEnd        *time.Time
	CancelAtPeriodEnd       bool
	ExternalSubscriptionRef string // billing provider's subscription ID
	ExternalCustomerRef     string // billing provider's customer ID
	RetentionDays           int    // always derivable from Plan via the catalog
	Version                 int64
	UpdatedAt               time.Time
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// TrialExpiredAt reports whether the trial window has ended at the
// given instant. Always false for non-trial subscriptions.
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	if s.TrialEnd == nil {
		return false
	}
	return !now.Before(*s.TrialEnd)
}

// Clone returns a deep copy, preventing callers from mutating stored state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	out.TrialStart = cloneTime(s.TrialStart)
	out.TrialEnd = cloneTime(s.TrialEnd)
	out.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	out.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
