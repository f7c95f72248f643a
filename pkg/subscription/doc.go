// Package subscription holds the per-user subscription state model and
// the access-control evaluator.
//
// The package provides three pieces:
//
//   - Subscription: the versioned per-user plan/status record. The
//     version column implements optimistic concurrency; every
//     conditional write is conditioned on the version read and bumps it
//     by one, which is the only synchronization used for racing billing
//     events on the same user.
//   - Catalog: the plan policy (trial length, grace window, retention
//     windows). Retention days are always derived from the plan through
//     the catalog and never settable independently.
//   - EvaluateAccess: a pure function mapping a subscription snapshot
//     and the current time to an access level. It performs no I/O, so
//     expiry logic is unit-testable with a fixed clock.
//
// Two Store implementations ship with the package: PGStore for
// production and MemoryStore for tests, with identical conditional
// write semantics.
package subscription
