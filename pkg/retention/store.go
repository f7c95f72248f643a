package retention

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one time-series record owned by the chat-history service.
// Only ExpiresAt is ever written here; content stays opaque to this
// engine.
type Record struct {
	RecordID  string    `bson:"_id" json:"record_id"`
	UserID    uuid.UUID `bson:"user_id" json:"user_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Result reports a bulk expiry update per record. Only the failing
// subset is retried, so one bad record never blocks a user's update.
type Result struct {
	Updated int
	Failed  []string
}

// Store is the bulk retention-update interface exposed by the
// chat-history collaborator.
type Store interface {
	// BulkSetExpiry rewrites expires_at to created_at + days for every
	// record of the user not already at that target. Idempotent:
	// rerunning with the same days changes nothing.
	BulkSetExpiry(ctx context.Context, userID uuid.UUID, days int) (Result, error)
}
