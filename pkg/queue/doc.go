// Package queue provides a repository-agnostic, at-least-once task
// queue used to fan domain events out to the retention and notification
// consumers.
//
// Components interact only through small repository interfaces, keeping
// the processing logic decoupled from persistence:
//
//   - Enqueuer — adds one-time tasks to a named queue
//   - Worker   — claims pending tasks and dispatches them to a Handler
//
// Delivery is at least once and unordered; handlers must be idempotent.
// A task that fails returns to pending with backoff until its retry
// budget is exhausted, then moves to a dead-letter queue for manual
// inspection. Failure isolation is per-task: one poisoned message never
// blocks the rest of a queue.
package queue
