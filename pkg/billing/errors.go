package billing

import "errors"

var (
	// ErrMalformedPayload marks an event payload that cannot be decoded
	// into a command. Such events are acknowledged and dropped; retrying
	// cannot fix them.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrUnknownEventType marks an event outside the supported set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrDedupUnavailable is returned when the deduplication store
	// cannot be reached. Transient: the event stays unacknowledged.
	ErrDedupUnavailable = errors.New("deduplication store unavailable")
)
