package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutlabs/subsync/pkg/queue"
)

func newPendingTask(queueName string, priority queue.Priority) *queue.Task {
	now := time.Now()
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskName:    "test.task",
		Payload:     []byte(`{}`),
		Status:      queue.TaskStatusPending,
		Priority:    priority,
		MaxRetries:  3,
		ScheduledAt: now,
		CreatedAt:   now,
	}
}

func TestMemoryStorageClaimTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	workerID := uuid.New()

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		_, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("higher priority claimed first", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		low := newPendingTask("default", queue.PriorityLow)
		high := newPendingTask("default", queue.PriorityHigh)
		require.NoError(t, ms.CreateTask(ctx, low))
		require.NoError(t, ms.CreateTask(ctx, high))

		claimed, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, high.ID, claimed.ID)
		assert.Equal(t, queue.TaskStatusProcessing, claimed.Status)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
	})

	t.Run("future scheduled task not claimed", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		task := newPendingTask("default", queue.PriorityNormal)
		task.ScheduledAt = time.Now().Add(time.Hour)
		require.NoError(t, ms.CreateTask(ctx, task))

		_, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("queue filter respected", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		require.NoError(t, ms.CreateTask(ctx, newPendingTask("notifications", queue.PriorityNormal)))

		_, err := ms.ClaimTask(ctx, workerID, []string{"retention"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("claimed task not claimable twice", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		require.NoError(t, ms.CreateTask(ctx, newPendingTask("default", queue.PriorityNormal)))

		_, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.NoError(t, err)

		_, err = ms.ClaimTask(ctx, uuid.New(), []string{"default"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})
}

func TestMemoryStorageFailTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	workerID := uuid.New()

	t.Run("requeues with backoff while retries remain", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		task := newPendingTask("default", queue.PriorityNormal)
		require.NoError(t, ms.CreateTask(ctx, task))

		claimed, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.NoError(t, err)
		exhausted, err := ms.FailTask(ctx, claimed.ID, "transient")
		require.NoError(t, err)
		assert.False(t, exhausted)

		// Backoff means the task is not immediately claimable again.
		_, err = ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
		assert.Equal(t, 1, ms.PendingCount())
	})

	t.Run("exhausted retries park as failed", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		task := newPendingTask("default", queue.PriorityNormal)
		task.MaxRetries = 0
		require.NoError(t, ms.CreateTask(ctx, task))

		claimed, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.NoError(t, err)
		exhausted, err := ms.FailTask(ctx, claimed.ID, "fatal")
		require.NoError(t, err)
		assert.True(t, exhausted)
		require.NoError(t, ms.MoveToDLQ(ctx, claimed.ID))

		dead := ms.DeadTasks()
		require.Len(t, dead, 1)
		assert.Equal(t, task.ID, dead[0].TaskID)
		assert.Equal(t, "fatal", dead[0].Error)
		assert.Equal(t, int8(1), dead[0].RetryCount)
	})

	t.Run("reports exhaustion on the last allowed retry", func(t *testing.T) {
		t.Parallel()
		ms := queue.NewMemoryStorage()
		defer ms.Close() //nolint:errcheck

		task := newPendingTask("default", queue.PriorityNormal)
		task.MaxRetries = 2
		require.NoError(t, ms.CreateTask(ctx, task))

		for i := 0; i < 2; i++ {
			claimed, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
			require.NoError(t, err)

			exhausted, err := ms.FailTask(ctx, claimed.ID, "still broken")
			require.NoError(t, err)
			assert.Equal(t, i == 1, exhausted, "attempt %d", i+1)
			ms.ClearBackoff(claimed.ID)
		}

		// Parked as failed: unclaimable until dead-lettered.
		_, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
		require.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})
}

func TestMemoryStorageCompleteTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	workerID := uuid.New()

	ms := queue.NewMemoryStorage()
	defer ms.Close() //nolint:errcheck

	task := newPendingTask("default", queue.PriorityNormal)
	require.NoError(t, ms.CreateTask(ctx, task))

	claimed, err := ms.ClaimTask(ctx, workerID, []string{"default"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.CompleteTask(ctx, claimed.ID))

	// Completing a non-processing task is an error.
	require.Error(t, ms.CompleteTask(ctx, claimed.ID))
	assert.Equal(t, 0, ms.PendingCount())
}

func TestMemoryStorageLockReclaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	defer ms.Close() //nolint:errcheck

	task := newPendingTask("default", queue.PriorityNormal)
	require.NoError(t, ms.CreateTask(ctx, task))

	// Claim with a lock that expires almost immediately, simulating a
	// worker crash mid-processing.
	_, err := ms.ClaimTask(ctx, uuid.New(), []string{"default"}, 10*time.Millisecond)
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		claimed, err := ms.ClaimTask(ctx, uuid.New(), []string{"default"}, time.Minute)
		return err == nil && claimed.ID == task.ID
	})
}
