// Package billing receives verified billing-provider events and turns
// them into typed subscription transition commands.
//
// The Router is the single boundary where dynamic provider JSON becomes
// part of a closed command union; everything downstream pattern-matches
// exhaustively instead of probing fields. Duplicate deliveries are
// absorbed by a DedupStore keyed on the provider's event ID with a TTL
// longer than the provider's redelivery window. Events the router
// cannot ever process (unknown type, malformed payload) are
// acknowledged and dropped; transient failures are surfaced unacked so
// redelivery acts as the retry mechanism.
package billing
