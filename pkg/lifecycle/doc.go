// Package lifecycle implements the subscription transition processor:
// a state machine over subscription status driven by typed commands
// decoded from billing events.
//
// The processor is the single writer of subscription state. Each
// transition is applied through a version-conditioned write; on
// conflict the entire decision restarts from a fresh read, bounded by a
// small attempt budget. The transition's domain Event is emitted to the
// fan-out sink before the write, so a failed write leaves the inbound
// command redeliverable and its event is never lost; emission is
// at-least-once and consumers deduplicate on the event key.
package lifecycle
