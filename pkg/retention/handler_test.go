package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutlabs/subsync/pkg/lifecycle"
	"github.com/sproutlabs/subsync/pkg/retention"
)

func planChangedEvent(userID uuid.UUID, oldDays, newDays int) lifecycle.Event {
	return lifecycle.Event{
		UserID:           userID,
		Type:             lifecycle.EventPlanChanged,
		OldRetentionDays: oldDays,
		NewRetentionDays: newDays,
		OccurredAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func seedRecords(store *retention.MemoryStore, userID uuid.UUID, n, days int) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		created := base.Add(time.Duration(i) * time.Hour)
		store.Add(retention.Record{
			RecordID:  uuid.NewString(),
			UserID:    userID,
			CreatedAt: created,
			ExpiresAt: created.Add(time.Duration(days) * 24 * time.Hour),
		})
	}
}

func TestHandlerPropagatesRetentionChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := retention.NewMemoryStore()
	userID := uuid.New()
	seedRecords(store, userID, 5, 30)

	// Another user's records must stay untouched.
	other := uuid.New()
	seedRecords(store, other, 2, 30)

	handler := retention.NewHandler(store)
	require.NoError(t, handler.Handle(ctx, planChangedEvent(userID, 30, 180)))

	res, err := store.BulkSetExpiry(ctx, userID, 180)
	require.NoError(t, err)
	assert.Zero(t, res.Updated, "all records should already be at target")

	res, err = store.BulkSetExpiry(ctx, other, 30)
	require.NoError(t, err)
	assert.Zero(t, res.Updated, "other user's records should be unchanged")
}

func TestHandlerRerunIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := retention.NewMemoryStore()
	userID := uuid.New()

	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	recordID := uuid.NewString()
	store.Add(retention.Record{
		RecordID:  recordID,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(30 * 24 * time.Hour),
	})

	handler := retention.NewHandler(store)
	evt := planChangedEvent(userID, 30, 180)

	require.NoError(t, handler.Handle(ctx, evt))
	first, ok := store.Get(recordID)
	require.True(t, ok)

	// Same event delivered again: expires_at must not move.
	require.NoError(t, handler.Handle(ctx, evt))
	second, ok := store.Get(recordID)
	require.True(t, ok)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Equal(t, created.Add(180*24*time.Hour), second.ExpiresAt)
}

func TestHandlerRetriesFailedSubset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := retention.NewMemoryStore()
	userID := uuid.New()
	seedRecords(store, userID, 3, 30)

	flaky := uuid.NewString()
	created := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	store.Add(retention.Record{
		RecordID:  flaky,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(30 * 24 * time.Hour),
	})
	store.FailNext(flaky)

	handler := retention.NewHandler(store)
	require.NoError(t, handler.Handle(ctx, planChangedEvent(userID, 30, 180)))

	rec, ok := store.Get(flaky)
	require.True(t, ok)
	assert.Equal(t, created.Add(180*24*time.Hour), rec.ExpiresAt, "in-invocation retry should land the flaky record")
}

func TestHandlerPersistentFailureSurfacesError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := retention.NewMemoryStore()
	userID := uuid.New()

	stuck := uuid.NewString()
	created := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	store.Add(retention.Record{
		RecordID:  stuck,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(30 * 24 * time.Hour),
	})
	store.FailAlways(stuck)

	handler := retention.NewHandler(store)
	err := handler.Handle(ctx, planChangedEvent(userID, 30, 180))
	require.ErrorIs(t, err, retention.ErrPartialFailure)
}

func TestHandlerSkipsNonRetentionEvents(t *testing.T) {
	t.Parallel()

	store := retention.NewMemoryStore()
	userID := uuid.New()
	seedRecords(store, userID, 2, 30)

	handler := retention.NewHandler(store)
	require.NoError(t, handler.Handle(context.Background(), lifecycle.Event{
		UserID:           userID,
		Type:             lifecycle.EventPaymentFailed,
		OldRetentionDays: 180,
		NewRetentionDays: 180,
		OccurredAt:       time.Now(),
	}))

	res, err := store.BulkSetExpiry(context.Background(), userID, 30)
	require.NoError(t, err)
	assert.Zero(t, res.Updated, "payment_failed must not touch retention")
}

func TestHandlerRejectsInvalidRetention(t *testing.T) {
	t.Parallel()

	handler := retention.NewHandler(retention.NewMemoryStore())
	err := handler.Handle(context.Background(), planChangedEvent(uuid.New(), 30, 0))
	require.ErrorIs(t, err, retention.ErrInvalidRetentionDays)
}
