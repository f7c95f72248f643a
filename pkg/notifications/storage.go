package notifications

import "context"

// Storage persists notification records. Create is conditional on the
// ID being new; a duplicate is reported as ErrNotificationAlreadyExists
// and recovered by the caller as a no-op.
type Storage interface {
	Create(ctx context.Context, n Notification) error
}
