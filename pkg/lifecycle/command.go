package lifecycle

import (
	"time"

	"github.com/sproutlabs/subsync/pkg/subscription"
)

// Command is the closed set of typed transition commands. Billing
// payloads are decoded into exactly one of these at the router
// boundary; downstream code switches exhaustively instead of probing
// dynamic fields.
type Command interface {
	isCommand()
}

// PaymentSucceeded activates (or reactivates) a subscription. Period
// boundaries come from the payload itself, never from arrival order, so
// processing stays correct under event reordering.
type PaymentSucceeded struct {
	Plan            subscription.Plan
	PeriodStart     time.Time
	PeriodEnd       time.Time
	SubscriptionRef string
	CustomerRef     string
}

// PaymentFailed marks a billed subscription past due. Retention policy
// is not touched; the grace window is applied at access evaluation.
type PaymentFailed struct{}

// SubscriptionUpdated carries provider-side subscription changes:
// scheduling or clearing a cancel-at-period-end, or an immediate
// cancellation.
type SubscriptionUpdated struct {
	CancelAtPeriodEnd *bool // nil leaves the flag unchanged
	Canceled          bool
}

// ExpireTrial formally expires a lapsed trial. It is triggered lazily
// by the access evaluator's NeedsExpiration signal and goes through the
// same conditional-write path as provider-driven transitions.
type ExpireTrial struct{}

func (PaymentSucceeded) isCommand()    {}
func (PaymentFailed) isCommand()       {}
func (SubscriptionUpdated) isCommand() {}
func (ExpireTrial) isCommand()         {}
