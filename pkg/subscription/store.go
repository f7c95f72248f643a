package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store defines versioned subscription persistence. Each user has
// exactly one subscription, so UserID serves as the primary key.
//
// Update is a conditional write: it succeeds only when the stored
// version equals expectedVersion, otherwise it returns
// ErrVersionConflict. On conflict the caller must re-read and redo the
// entire decision, not just the write, because the decision may depend
// on the now-stale read.
type Store interface {
	// Get retrieves a subscription by user ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Create inserts a new subscription record.
	// Returns ErrSubscriptionAlreadyExists on duplicate user ID.
	Create(ctx context.Context, sub *Subscription) error

	// Update writes the subscription conditioned on the stored version
	// matching expectedVersion, and bumps the version by one.
	Update(ctx context.Context, sub *Subscription, expectedVersion int64) error
}
