package lifecycle

import "errors"

var (
	// ErrInvalidCommand is returned for commands outside the closed set
	// or with payload values that violate plan invariants.
	ErrInvalidCommand = errors.New("invalid transition command")

	// ErrTooManyConflicts is returned when a transition exhausts its
	// optimistic-concurrency retry budget. It is transient: the caller
	// should withhold acknowledgment and let redelivery retry.
	ErrTooManyConflicts = errors.New("too many version conflicts applying transition")
)
