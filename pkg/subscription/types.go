package subscription

// Plan represents the subscription tier a user is on.
type Plan string

const (
	PlanNone    Plan = "none"
	PlanTrial   Plan = "trial"
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// IsPaid returns true for plans that are billed by the provider.
func (p Plan) IsPaid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// Valid reports whether the plan is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanNone, PlanTrial, PlanMonthly, PlanYearly:
		return true
	}
	return false
}

// Status represents the current state of a subscription.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status is an end state. Terminal
// subscriptions are never hard-deleted; they stay readable so access
// evaluation and re-subscription keep working.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// AccessLevel is the result of access evaluation consumed by
// request-serving code.
type AccessLevel string

const (
	AccessFull        AccessLevel = "full"
	AccessBillingOnly AccessLevel = "billing_only"
	AccessNone        AccessLevel = "none"
)

// Restriction reasons reported alongside a non-full access level.
const (
	ReasonNoSubscription       = "no_subscription"
	ReasonTrialExpired         = "trial_expired"
	ReasonPaymentPastDue       = "payment_past_due"
	ReasonSubscriptionCanceled = "subscription_canceled"
	ReasonSubscriptionExpired  = "subscription_expired"
	ReasonStateUnavailable     = "state_unavailable"
)
