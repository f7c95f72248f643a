// Package retention propagates subscription plan changes into the
// expiration policy of the chat-history store.
//
// The handler consumes plan_changed domain events and issues a bulk
// expiry rewrite: every record's expires_at becomes created_at plus the
// new retention window. The operation is a pure function of the event's
// retention days, so duplicate deliveries and reruns converge on the
// same state. Failures are isolated per record and pagination bounds
// each pass over large histories.
package retention
