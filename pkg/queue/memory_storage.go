package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements the queue repository interfaces in memory,
// for tests and local development. Locks held by crashed workers are
// reclaimed by a background sweep so claimed tasks are never lost.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   map[uuid.UUID]*DeadTask

	byStatus map[TaskStatus][]uuid.UUID

	lockTicker *time.Ticker
	done       chan struct{}
}

// NewMemoryStorage creates a new in-memory storage implementation.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		dlq:      make(map[uuid.UUID]*DeadTask),
		byStatus: make(map[TaskStatus][]uuid.UUID),
		done:     make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.reclaimExpiredLocks()

	return ms
}

// Close stops the background lock sweep.
func (ms *MemoryStorage) Close() error {
	close(ms.done)
	ms.lockTicker.Stop()
	return nil
}

// CreateTask implements EnqueuerRepository.
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)

	return nil
}

// ClaimTask implements WorkerRepository. Selection is priority-first
// with creation order breaking ties within a tier.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task

	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}
		// Skip tasks scheduled for future execution (retry backoff).
		if task.ScheduledAt.After(now) {
			continue
		}
		if task.LockedUntil != nil && task.LockedUntil.After(now) {
			continue
		}

		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	ms.removeFromStatusIndex(best.ID, TaskStatusPending)
	ms.byStatus[TaskStatusProcessing] = append(ms.byStatus[TaskStatusProcessing], best.ID)

	taskCopy := *best
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository.
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	ms.byStatus[TaskStatusCompleted] = append(ms.byStatus[TaskStatusCompleted], taskID)

	return nil
}

// FailTask implements WorkerRepository. While retries remain the task
// returns to pending with a linear backoff; otherwise it is parked as
// failed and the returned flag tells the caller to dead-letter it.
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return false, fmt.Errorf("task %s not found", taskID)
	}
	if task.Status != TaskStatusProcessing {
		return false, fmt.Errorf("task %s is not in processing state", taskID)
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		ms.byStatus[TaskStatusFailed] = append(ms.byStatus[TaskStatusFailed], taskID)
		return true, nil
	}

	task.Status = TaskStatusPending
	ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
	// Linear backoff keeps retries from hammering a struggling
	// downstream while staying prompt for transient blips.
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * 30 * time.Second)

	return false, nil
}

// MoveToDLQ implements WorkerRepository.
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}

	dead := &DeadTask{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
		CreatedAt:  task.CreatedAt,
	}
	if task.Error != nil {
		dead.Error = *task.Error
	}
	ms.dlq[dead.ID] = dead

	ms.removeFromStatusIndex(taskID, task.Status)
	delete(ms.tasks, taskID)

	return nil
}

// DeadTasks returns a snapshot of the dead letter queue for inspection.
func (ms *MemoryStorage) DeadTasks() []DeadTask {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]DeadTask, 0, len(ms.dlq))
	for _, d := range ms.dlq {
		out = append(out, *d)
	}
	return out
}

// ClearBackoff makes a pending task immediately claimable again, for
// tests exercising multi-attempt flows without waiting out the backoff.
func (ms *MemoryStorage) ClearBackoff(taskID uuid.UUID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if task, ok := ms.tasks[taskID]; ok {
		task.ScheduledAt = time.Now()
	}
}

// PendingCount returns the number of pending tasks, for tests that wait
// on queue drain.
func (ms *MemoryStorage) PendingCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.byStatus[TaskStatusPending]) + len(ms.byStatus[TaskStatusProcessing])
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// reclaimExpiredLocks resets tasks whose worker died mid-processing
// back to pending so another worker can claim them.
func (ms *MemoryStorage) reclaimExpiredLocks() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.mu.Lock()
			now := time.Now()
			for _, taskID := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
				task := ms.tasks[taskID]
				if task.LockedUntil != nil && task.LockedUntil.Before(now) {
					task.Status = TaskStatusPending
					task.LockedUntil = nil
					task.LockedBy = nil

					ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
					ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
				}
			}
			ms.mu.Unlock()
		case <-ms.done:
			return
		}
	}
}
