package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutlabs/subsync/pkg/billing"
	"github.com/sproutlabs/subsync/pkg/clock"
	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/subscription"
)

type nullSink struct{}

func (nullSink) Emit(context.Context, lifecycle.Event) error { return nil }

type routerFixture struct {
	router *billing.Router
	store  *subscription.MemoryStore
	dedup  *billing.MemoryDedupStore
	clock  *clock.Mock
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	store := subscription.NewMemoryStore()
	dedup := billing.NewMemoryDedupStore()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	processor := lifecycle.NewProcessor(store, subscription.DefaultCatalog(), nullSink{}, clk)

	return &routerFixture{
		router: billing.NewRouter(dedup, processor),
		store:  store,
		dedup:  dedup,
		clock:  clk,
	}
}

func paymentSucceededEvent(eventID string, userID uuid.UUID, clk *clock.Mock) billing.EventEnvelope {
	now := clk.Now()
	payload, _ := json.Marshal(map[string]any{
		"user_id":          userID,
		"plan":             "monthly",
		"period_start":     now,
		"period_end":       now.AddDate(0, 1, 0),
		"subscription_ref": "sub_123",
		"customer_ref":     "cus_456",
	})
	return billing.EventEnvelope{
		ExternalEventID: eventID,
		Type:            billing.EventPaymentSucceeded,
		Payload:         payload,
		ReceivedAt:      now,
	}
}

func TestRouterAppliesPaymentSucceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)
	userID := uuid.New()

	require.NoError(t, f.router.Handle(ctx, paymentSucceededEvent("evt_1", userID, f.clock)))

	sub, err := f.store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.PlanMonthly, sub.Plan)
	assert.Equal(t, 180, sub.RetentionDays)

	outcome, ok := f.dedup.Outcome("evt_1")
	require.True(t, ok)
	assert.Equal(t, billing.OutcomeApplied, outcome)
}

func TestRouterDuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)
	userID := uuid.New()
	evt := paymentSucceededEvent("evt_dup", userID, f.clock)

	require.NoError(t, f.router.Handle(ctx, evt))

	after, err := f.store.Get(ctx, userID)
	require.NoError(t, err)

	// Redeliver the same external event several times: state must equal
	// the state after a single delivery, version included.
	for range 3 {
		require.NoError(t, f.router.Handle(ctx, evt))
	}

	again, err := f.store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, after.Version, again.Version)
	assert.Equal(t, after.Status, again.Status)
	assert.Equal(t, after.CurrentPeriodEnd, again.CurrentPeriodEnd)
}

func TestRouterUnknownTypeAcknowledged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)

	require.NoError(t, f.router.Handle(ctx, billing.EventEnvelope{
		ExternalEventID: "evt_unknown",
		Type:            "refund.created",
		Payload:         json.RawMessage(`{}`),
	}))

	outcome, ok := f.dedup.Outcome("evt_unknown")
	require.True(t, ok)
	assert.Equal(t, billing.OutcomeIgnored, outcome)

	// Redelivery short-circuits on the dedup record.
	require.NoError(t, f.router.Handle(ctx, billing.EventEnvelope{
		ExternalEventID: "evt_unknown",
		Type:            "refund.created",
	}))
}

func TestRouterMalformedPayloadRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)

	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"missing user_id", `{"plan":"monthly","period_start":"2025-06-01T00:00:00Z","period_end":"2025-07-01T00:00:00Z"}`},
		{"unknown plan", fmt.Sprintf(`{"user_id":%q,"plan":"lifetime","period_start":"2025-06-01T00:00:00Z","period_end":"2025-07-01T00:00:00Z"}`, uuid.New())},
		{"missing period", fmt.Sprintf(`{"user_id":%q,"plan":"monthly"}`, uuid.New())},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eventID := fmt.Sprintf("evt_bad_%d", i)
			require.NoError(t, f.router.Handle(ctx, billing.EventEnvelope{
				ExternalEventID: eventID,
				Type:            billing.EventPaymentSucceeded,
				Payload:         json.RawMessage(tc.payload),
			}))

			outcome, ok := f.dedup.Outcome(eventID)
			require.True(t, ok)
			assert.Equal(t, billing.OutcomeRejected, outcome)
		})
	}
}

func TestRouterFreePlanPaymentRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)
	userID := uuid.New()

	now := f.clock.Now()
	payload, _ := json.Marshal(map[string]any{
		"user_id":      userID,
		"plan":         "none",
		"period_start": now,
		"period_end":   now.AddDate(0, 1, 0),
	})

	// Decodes fine but the processor refuses a payment for a free plan;
	// that is permanent, so the event is acknowledged as rejected.
	require.NoError(t, f.router.Handle(ctx, billing.EventEnvelope{
		ExternalEventID: "evt_free",
		Type:            billing.EventPaymentSucceeded,
		Payload:         payload,
	}))

	outcome, ok := f.dedup.Outcome("evt_free")
	require.True(t, ok)
	assert.Equal(t, billing.OutcomeRejected, outcome)
}

func TestRouterPaymentFailedForUnknownUserRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRouterFixture(t)

	payload, _ := json.Marshal(map[string]any{"user_id": uuid.New()})
	require.NoError(t, f.router.Handle(ctx, billing.EventEnvelope{
		ExternalEventID: "evt_orphan",
		Type:            billing.EventPaymentFailed,
		Payload:         payload,
	}))

	outcome, ok := f.dedup.Outcome("evt_orphan")
	require.True(t, ok)
	assert.Equal(t, billing.OutcomeRejected, outcome)
}

type failingProcessor struct{ err error }

func (p failingProcessor) Apply(context.Context, uuid.UUID, lifecycle.Command) (*subscription.Subscription, error) {
	return nil, p.err
}

func TestRouterTransientErrorWithholdsAck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dedup := billing.NewMemoryDedupStore()
	transient := errors.Join(lifecycle.ErrTooManyConflicts, subscription.ErrVersionConflict)
	router := billing.NewRouter(dedup, failingProcessor{err: transient})

	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	err := router.Handle(ctx, paymentSucceededEvent("evt_transient", uuid.New(), clk))
	require.Error(t, err)
	require.ErrorIs(t, err, lifecycle.ErrTooManyConflicts)

	// No dedup record: redelivery must retry this event.
	_, ok := dedup.Outcome("evt_transient")
	assert.False(t, ok)
}

func TestRouterInvalidEnvelopeDropped(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	require.NoError(t, f.router.Handle(context.Background(), billing.EventEnvelope{
		Type: billing.EventPaymentFailed,
	}))
}
