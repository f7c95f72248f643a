package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sproutlabs/subsync/pkg/lifecycle"
)

// Handler consumes plan_changed domain events and propagates the new
// retention window into the chat-history store. It is idempotent:
// reprocessing the same event recomputes identical targets and touches
// nothing already at target.
type Handler struct {
	store Store
	log   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a retention propagation handler.
func NewHandler(store Store, opts ...HandlerOption) *Handler {
	if store == nil {
		panic("retention: store is required")
	}

	h := &Handler{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle applies one plan_changed event. Per-record failures are
// retried once within the invocation; a subset that still fails makes
// the whole handler return an error so the queue redelivers the event.
// Records updated on the first pass are no-ops on the rerun.
func (h *Handler) Handle(ctx context.Context, evt lifecycle.Event) error {
	if evt.Type != lifecycle.EventPlanChanged {
		// Only retention-affecting events belong on this queue.
		h.log.WarnContext(ctx, "skipping non-retention event",
			slog.String("user_id", evt.UserID.String()),
			slog.String("event_type", string(evt.Type)))
		return nil
	}

	result, err := h.store.BulkSetExpiry(ctx, evt.UserID, evt.NewRetentionDays)
	if err != nil {
		return fmt.Errorf("propagate retention for user %s: %w", evt.UserID, err)
	}

	if len(result.Failed) > 0 {
		h.log.WarnContext(ctx, "retrying failed retention records",
			slog.String("user_id", evt.UserID.String()),
			slog.Int("failed", len(result.Failed)))

		// Already-updated records are skipped, so the rerun effectively
		// targets only the failed subset.
		retry, err := h.store.BulkSetExpiry(ctx, evt.UserID, evt.NewRetentionDays)
		if err != nil {
			return fmt.Errorf("retry retention for user %s: %w", evt.UserID, err)
		}
		result.Updated += retry.Updated
		result.Failed = retry.Failed
	}

	if len(result.Failed) > 0 {
		return fmt.Errorf("%w: user %s, %d records", ErrPartialFailure, evt.UserID, len(result.Failed))
	}

	h.log.InfoContext(ctx, "retention propagated",
		slog.String("user_id", evt.UserID.String()),
		slog.Int("retention_days", evt.NewRetentionDays),
		slog.Int("updated", result.Updated))

	return nil
}
