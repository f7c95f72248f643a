// Package engine composes the subscription lifecycle engine: the
// billing-event router, the transition processor, the access
// evaluator, and the queue workers that fan domain events out to the
// retention and notification consumers.
//
// Engines are assembled either from explicit dependencies (New, used in
// tests with memory stores) or from the environment (NewFromConfig,
// which connects PostgreSQL, Redis, and Mongo and applies migrations).
// Run drives the workers and the HTTP surface under one errgroup.
package engine
