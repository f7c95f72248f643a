// Package notifications writes user-visible notification records for
// subscription domain events. Records are keyed by the event's dedup
// identity and created conditionally, so at-least-once delivery never
// produces duplicates. Delivery transport (push, email) is a separate
// collaborator reading these records.
package notifications
