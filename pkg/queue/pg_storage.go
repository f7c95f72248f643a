package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStorage implements the queue repository interfaces on PostgreSQL.
// Claiming uses FOR UPDATE SKIP LOCKED so concurrent workers never
// contend on the same row, and the claim query also picks up tasks
// whose lock expired, which is how work abandoned by a crashed worker
// is reclaimed.
type PGStorage struct {
	pool *pgxpool.Pool
}

// NewPGStorage creates a queue storage backed by the given pool.
func NewPGStorage(pool *pgxpool.Pool) (*PGStorage, error) {
	if pool == nil {
		return nil, ErrRepositoryNil
	}
	return &PGStorage{pool: pool}, nil
}

const taskColumns = `id, queue, task_name, payload, status, priority,
	retry_count, max_retries, scheduled_at, locked_until, locked_by,
	processed_at, error, created_at`

func (s *PGStorage) CreateTask(ctx context.Context, task *Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.Queue, task.TaskName, task.Payload, task.Status, task.Priority,
		task.RetryCount, task.MaxRetries, task.ScheduledAt, task.LockedUntil, task.LockedBy,
		task.ProcessedAt, task.Error, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PGStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET
			status = $1, locked_until = now() + $2, locked_by = $3
		 WHERE id = (
			SELECT id FROM tasks
			WHERE queue = ANY($4)
			  AND (
				(status = $5 AND scheduled_at <= now())
				OR (status = $1 AND locked_until < now())
			  )
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+taskColumns,
		TaskStatusProcessing, lockDuration, workerID, queues, TaskStatusPending,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *PGStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET
			status = $2, processed_at = now(), locked_until = NULL, locked_by = NULL
		 WHERE id = $1 AND status = $3`,
		taskID, TaskStatusCompleted, TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

func (s *PGStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) (bool, error) {
	// Linear backoff per retry; exhausted tasks park as failed and the
	// caller dead-letters them. Exhaustion is computed on the stored
	// post-increment count, not the caller's stale copy.
	var exhausted bool
	err := s.pool.QueryRow(ctx,
		`UPDATE tasks SET
			retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN $3 ELSE $4 END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
				ELSE now() + (retry_count + 1) * interval '30 seconds' END
		 WHERE id = $1 AND status = $5
		 RETURNING retry_count >= max_retries`,
		taskID, errorMsg, TaskStatusFailed, TaskStatusPending, TaskStatusProcessing,
	).Scan(&exhausted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("task %s is not in processing state", taskID)
		}
		return false, fmt.Errorf("fail task %s: %w", taskID, err)
	}
	return exhausted, nil
}

func (s *PGStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dlq move for task %s: %w", taskID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO dead_tasks (id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at)
		 SELECT gen_random_uuid(), id, queue, task_name, payload, priority, COALESCE(error, ''), retry_count, now(), created_at
		 FROM tasks WHERE id = $1`,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("dead-letter task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("remove dead-lettered task %s: %w", taskID, err)
	}

	return tx.Commit(ctx)
}

func scanTask(row pgx.Row) (*Task, error) {
	var task Task
	err := row.Scan(
		&task.ID, &task.Queue, &task.TaskName, &task.Payload, &task.Status, &task.Priority,
		&task.RetryCount, &task.MaxRetries, &task.ScheduledAt, &task.LockedUntil, &task.LockedBy,
		&task.ProcessedAt, &task.Error, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
