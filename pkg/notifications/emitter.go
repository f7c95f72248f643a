package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sproutlabs/subsync/pkg/lifecycle"
)

// Emitter turns domain events into user-visible notification records.
// It carries no business logic beyond this mapping and never computes
// access levels; duplicate deliveries are absorbed by the storage's
// conditional write.
type Emitter struct {
	storage Storage
	log     *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

func WithLogger(log *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEmitter creates a notification emitter.
func NewEmitter(storage Storage, opts ...EmitterOption) *Emitter {
	if storage == nil {
		panic("notifications: storage is required")
	}

	e := &Emitter{
		storage: storage,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle writes one notification for the event. The record is keyed by
// the event's dedup identity, so redelivery hits the existing record
// and no-ops.
func (e *Emitter) Handle(ctx context.Context, evt lifecycle.Event) error {
	n := FromEvent(evt)

	if err := e.storage.Create(ctx, n); err != nil {
		if errors.Is(err, ErrNotificationAlreadyExists) {
			e.log.DebugContext(ctx, "notification already exists, skipping",
				slog.String("notification_id", n.ID))
			return nil
		}
		return fmt.Errorf("create notification %s: %w", n.ID, err)
	}

	e.log.InfoContext(ctx, "notification created",
		slog.String("user_id", evt.UserID.String()),
		slog.String("event_type", string(evt.Type)),
		slog.String("priority", string(n.Priority)))

	return nil
}

// FromEvent builds the notification record for a domain event.
func FromEvent(evt lifecycle.Event) Notification {
	title, message := contentFor(evt)

	return Notification{
		ID:        evt.DedupKey(),
		UserID:    evt.UserID,
		Type:      string(evt.Type),
		Title:     title,
		Message:   message,
		Priority:  priorityFor(evt.Type),
		CreatedAt: evt.OccurredAt,
		ExpiresAt: evt.OccurredAt.Add(defaultLifetime),
	}
}

func priorityFor(t lifecycle.EventType) Priority {
	if t == lifecycle.EventPaymentFailed {
		return PriorityHigh
	}
	return PriorityNormal
}

func contentFor(evt lifecycle.Event) (title, message string) {
	switch evt.Type {
	case lifecycle.EventPaymentFailed:
		return "Payment failed",
			"We couldn't process your latest payment. Please update your payment method to keep your subscription active."
	case lifecycle.EventSubscriptionCanceled:
		return "Subscription canceled",
			"Your subscription will remain active until the end of the current billing period."
	case lifecycle.EventTrialExpired:
		return "Trial ended",
			"Your free trial has ended. Subscribe to keep full access."
	case lifecycle.EventPlanChanged:
		if evt.NewRetentionDays > evt.OldRetentionDays {
			return "Plan updated",
				fmt.Sprintf("Your plan now keeps your history for %d days.", evt.NewRetentionDays)
		}
		return "Plan updated",
			fmt.Sprintf("Your history is now kept for %d days.", evt.NewRetentionDays)
	}
	return "Account update", "Your subscription status changed."
}
