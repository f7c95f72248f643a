package notifications

import "errors"

var (
	// ErrNotificationAlreadyExists is returned by Create when a record
	// with the same ID exists. Under at-least-once delivery this is the
	// expected duplicate signal, not a failure.
	ErrNotificationAlreadyExists = errors.New("notification already exists")

	// ErrStorageUnavailable is returned when the notification store
	// cannot be reached. Transient: the queue redelivers the event.
	ErrStorageUnavailable = errors.New("notification storage unavailable")
)
