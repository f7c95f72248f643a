package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

// EventType identifies an inbound billing-provider event.
type EventType string

const (
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventPaymentFailed       EventType = "payment.failed"
	EventSubscriptionUpdated EventType = "subscription.updated"
)

// Known reports whether the event type is in the supported set. Unknown
// types are acknowledged and dropped so they never block the pipeline.
func (t EventType) Known() bool {
	switch t {
	case EventPaymentSucceeded, EventPaymentFailed, EventSubscriptionUpdated:
		return true
	}
	return false
}

// EventEnvelope is an inbound billing event. Signature verification and
// transport concerns happen upstream; the envelope arrives structured
// and trusted.
type EventEnvelope struct {
	ExternalEventID string          `json:"external_event_id"`
	Type            EventType       `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// Validate checks the envelope fields the router depends on.
func (e EventEnvelope) Validate() error {
	if e.ExternalEventID == "" {
		return fmt.Errorf("%w: missing external_event_id", ErrMalformedPayload)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return nil
}

type paymentSucceededPayload struct {
	UserID          uuid.UUID `json:"user_id"`
	Plan            string    `json:"plan"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	SubscriptionRef string    `json:"subscription_ref"`
	CustomerRef     string    `json:"customer_ref"`
}

type paymentFailedPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type subscriptionUpdatedPayload struct {
	UserID            uuid.UUID `json:"user_id"`
	CancelAtPeriodEnd *bool     `json:"cancel_at_period_end,omitempty"`
	Canceled          bool      `json:"canceled"`
}

// decodeCommand turns an envelope payload into exactly one typed
// command. This is the single point where dynamic provider JSON becomes
// part of the closed union; downstream code switches exhaustively.
func decodeCommand(e EventEnvelope) (uuid.UUID, lifecycle.Command, error) {
	switch e.Type {
	case EventPaymentSucceeded:
		var p paymentSucceededPayload
		if err := strictUnmarshal(e.Payload, &p); err != nil {
			return uuid.Nil, nil, err
		}
		if p.UserID == uuid.Nil {
			return uuid.Nil, nil, fmt.Errorf("%w: missing user_id", ErrMalformedPayload)
		}
		plan := subscription.Plan(p.Plan)
		if !plan.Valid() {
			return uuid.Nil, nil, fmt.Errorf("%w: unknown plan %q", ErrMalformedPayload, p.Plan)
		}
		if p.PeriodStart.IsZero() || p.PeriodEnd.IsZero() {
			return uuid.Nil, nil, fmt.Errorf("%w: missing billing period", ErrMalformedPayload)
		}
		return p.UserID, lifecycle.PaymentSucceeded{
			Plan:            plan,
			PeriodStart:     p.PeriodStart,
			PeriodEnd:       p.PeriodEnd,
			SubscriptionRef: p.SubscriptionRef,
			CustomerRef:     p.CustomerRef,
		}, nil

	case EventPaymentFailed:
		var p paymentFailedPayload
		if err := strictUnmarshal(e.Payload, &p); err != nil {
			return uuid.Nil, nil, err
		}
		if p.UserID == uuid.Nil {
			return uuid.Nil, nil, fmt.Errorf("%w: missing user_id", ErrMalformedPayload)
		}
		return p.UserID, lifecycle.PaymentFailed{}, nil

	case EventSubscriptionUpdated:
		var p subscriptionUpdatedPayload
		if err := strictUnmarshal(e.Payload, &p); err != nil {
			return uuid.Nil, nil, err
		}
		if p.UserID == uuid.Nil {
			return uuid.Nil, nil, fmt.Errorf("%w: missing user_id", ErrMalformedPayload)
		}
		return p.UserID, lifecycle.SubscriptionUpdated{
			CancelAtPeriodEnd: p.CancelAtPeriodEnd,
			Canceled:          p.Canceled,
		}, nil
	}

	return uuid.Nil, nil, fmt.Errorf("%w: %s", ErrUnknownEventType, e.Type)
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}
	return nil
}
