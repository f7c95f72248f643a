package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutlabs/subsync/pkg/billing"
	"github.com/sproutlabs/subsync/pkg/clock"
	"github.com/sproutlabs/subsync/pkg/notifications"
	"github.com/sproutlabs/subsync/pkg/queue"
	"github.com/sproutlabs/subsync/pkg/retention"
	"github.com/sproutlabs/subsync/pkg/subscription"
	"github.com/sproutlabs/subsync/svc/engine"
)

type fixture struct {
	engine        *engine.Engine
	server        *httptest.Server
	subscriptions *subscription.MemoryStore
	retention     *retention.MemoryStore
	notifications *notifications.MemoryStorage
	clock         *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	subs := subscription.NewMemoryStore()
	ret := retention.NewMemoryStore()
	notif := notifications.NewMemoryStorage()
	qs := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = qs.Close() })

	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	eng, err := engine.New(engine.Deps{
		Subscriptions:      subs,
		Dedup:              billing.NewMemoryDedupStore(),
		Retention:          ret,
		Notifications:      notif,
		QueueEnqueuer:      qs,
		QueueWorker:        qs,
		Catalog:            subscription.DefaultCatalog(),
		Clock:              clk,
		WorkerPullInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	server := httptest.NewServer(eng.Handler())
	t.Cleanup(server.Close)

	return &fixture{
		engine:        eng,
		server:        server,
		subscriptions: subs,
		retention:     ret,
		notifications: notif,
		clock:         clk,
	}
}

func (f *fixture) postWebhook(t *testing.T, eventID string, eventType billing.EventType, payload map[string]any) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"external_event_id": eventID,
		"type":              eventType,
		"payload":           payload,
		"received_at":       f.clock.Now(),
	})
	require.NoError(t, err)

	resp, err := http.Post(f.server.URL+"/webhooks/billing", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) getAccess(t *testing.T, userID uuid.UUID) engine.Access {
	t.Helper()

	resp, err := http.Get(f.server.URL + "/access/" + userID.String())
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var access engine.Access
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&access))
	return access
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func monthlyPayload(userID uuid.UUID, now time.Time) map[string]any {
	return map[string]any{
		"user_id":          userID,
		"plan":             "monthly",
		"period_start":     now,
		"period_end":       now.AddDate(0, 1, 0),
		"subscription_ref": "sub_001",
		"customer_ref":     "cus_001",
	}
}

func TestTrialGrantsFullAccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	userID := uuid.New()

	access := f.getAccess(t, userID)
	assert.True(t, access.Allowed)
	assert.Equal(t, subscription.AccessFull, access.Level)
	assert.Nil(t, access.Reason)

	sub, err := f.subscriptions.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanTrial, sub.Plan)
	assert.Equal(t, subscription.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 7), *sub.TrialEnd)
}

func TestLapsedTrialDeniedAndLazilyExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	userID := uuid.New()

	// First activity creates the trial.
	f.getAccess(t, userID)

	f.clock.Advance(8 * 24 * time.Hour)

	access := f.getAccess(t, userID)
	assert.False(t, access.Allowed)
	assert.Equal(t, subscription.AccessBillingOnly, access.Level)
	require.NotNil(t, access.Reason)
	assert.Equal(t, subscription.ReasonTrialExpired, *access.Reason)

	// The lazy expiry transition was applied through the normal path.
	sub, err := f.subscriptions.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, sub.Status)
	assert.Equal(t, subscription.PlanNone, sub.Plan)
}

func TestPaymentAfterExpiryRestoresAccessAndRetention(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.getAccess(t, userID)

	// Seed chat history at the trial retention window.
	created := f.clock.Now().Add(-24 * time.Hour)
	recordID := uuid.NewString()
	f.retention.Add(retention.Record{
		RecordID:  recordID,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(30 * 24 * time.Hour),
	})

	f.clock.Advance(8 * 24 * time.Hour)
	f.getAccess(t, userID) // triggers lazy expiry

	resp := f.postWebhook(t, "evt_pay_1", billing.EventPaymentSucceeded, monthlyPayload(userID, f.clock.Now()))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sub, err := f.subscriptions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 180, sub.RetentionDays)

	access := f.getAccess(t, userID)
	assert.True(t, access.Allowed)

	// The plan_changed event propagates to the history store.
	waitFor(t, 3*time.Second, func() bool {
		rec, ok := f.retention.Get(recordID)
		return ok && rec.ExpiresAt.Equal(created.Add(180*24*time.Hour))
	})
}

func TestPaymentFailureCreatesHighPriorityNotification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	resp := f.postWebhook(t, "evt_pay_2", billing.EventPaymentSucceeded, monthlyPayload(userID, f.clock.Now()))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.postWebhook(t, "evt_fail_1", billing.EventPaymentFailed, map[string]any{"user_id": userID})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sub, err := f.subscriptions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
	assert.Equal(t, 180, sub.RetentionDays, "payment failure must not touch retention")

	// Within the grace window access stays full.
	access := f.getAccess(t, userID)
	assert.True(t, access.Allowed)

	waitFor(t, 3*time.Second, func() bool {
		for _, n := range f.notifications.All() {
			if n.UserID == userID && n.Type == "payment_failed" {
				return n.Priority == notifications.PriorityHigh
			}
		}
		return false
	})
}

func TestDuplicateWebhookDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	payload := monthlyPayload(userID, f.clock.Now())
	for range 4 {
		resp := f.postWebhook(t, "evt_dup", billing.EventPaymentSucceeded, payload)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	sub, err := f.subscriptions.Get(ctx, userID)
	require.NoError(t, err)
	// Bootstrap trial (v1) plus exactly one applied transition (v2).
	assert.Equal(t, int64(2), sub.Version)

	// Only one notification lands despite redeliveries.
	waitFor(t, 3*time.Second, func() bool { return len(f.notifications.All()) >= 1 })
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.notifications.All(), 1)
}

func TestConcurrentEventsConverge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	resp := f.postWebhook(t, "evt_pay_3", billing.EventPaymentSucceeded, monthlyPayload(userID, f.clock.Now()))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// A cancel-at-period-end and a payment failure race on one record.
	var wg sync.WaitGroup
	for i, eventType := range []billing.EventType{billing.EventSubscriptionUpdated, billing.EventPaymentFailed} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := map[string]any{"user_id": userID}
			if eventType == billing.EventSubscriptionUpdated {
				payload["cancel_at_period_end"] = true
			}
			r := f.postWebhook(t, fmt.Sprintf("evt_race_%d", i), eventType, payload)
			assert.Equal(t, http.StatusAccepted, r.StatusCode)
		}()
	}
	wg.Wait()

	sub, err := f.subscriptions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, int64(4), sub.Version, "both transitions must land exactly once")
}

func TestAccessEndpointRejectsBadUserID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/access/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/webhooks/billing", "application/json", bytes.NewReader([]byte("{{")))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type downDedup struct{}

func (downDedup) Seen(context.Context, string) (bool, error) {
	return false, billing.ErrDedupUnavailable
}

func (downDedup) MarkProcessed(context.Context, string, string, time.Duration) error {
	return billing.ErrDedupUnavailable
}

func TestWebhookTransientFailureReturns503(t *testing.T) {
	t.Parallel()

	qs := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = qs.Close() })

	eng, err := engine.New(engine.Deps{
		Subscriptions: subscription.NewMemoryStore(),
		Dedup:         downDedup{},
		Retention:     retention.NewMemoryStore(),
		Notifications: notifications.NewMemoryStorage(),
		QueueEnqueuer: qs,
		QueueWorker:   qs,
		Catalog:       subscription.DefaultCatalog(),
		Clock:         clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	server := httptest.NewServer(eng.Handler())
	t.Cleanup(server.Close)

	body, _ := json.Marshal(map[string]any{
		"external_event_id": "evt_down",
		"type":              billing.EventPaymentFailed,
		"payload":           map[string]any{"user_id": uuid.New()},
	})
	resp, err := http.Post(server.URL+"/webhooks/billing", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
