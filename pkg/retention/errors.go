package retention

import "errors"

var (
	// ErrInvalidRetentionDays is returned for a non-positive retention window.
	ErrInvalidRetentionDays = errors.New("retention days must be positive")

	// ErrPartialFailure is returned when some records could not be
	// updated after the in-invocation retry. The queue redelivers the
	// event; already-updated records are no-ops on the rerun.
	ErrPartialFailure = errors.New("some retention records failed to update")
)
