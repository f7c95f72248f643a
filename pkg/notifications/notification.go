package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Priority controls delivery urgency downstream.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// defaultLifetime is how long a notification record stays before
// cleanup.
const defaultLifetime = 30 * 24 * time.Hour

// Notification is a user-visible record handed to the delivery
// collaborator. ID is the event's dedup key, which is what makes
// creation conditional under duplicate delivery.
type Notification struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    uuid.UUID `bson:"user_id" json:"user_id"`
	Type      string    `bson:"type" json:"type"`
	Title     string    `bson:"title" json:"title"`
	Message   string    `bson:"message" json:"message"`
	Priority  Priority  `bson:"priority" json:"priority"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
