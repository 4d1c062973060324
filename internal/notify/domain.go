package notify

import (
	"context"
	"time"
)

// Notification is a message addressed to one identity.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	ActionURL string    `json:"actionUrl"`
}

// Source yields the notifications for a user in the order they were recorded.
type Source interface {
	ForUser(ctx context.Context, userID string) ([]Notification, error)
}

// ReadMarker is implemented by sources that can persist read flags.
type ReadMarker interface {
	MarkRead(ctx context.Context, userID, notificationID string) error
}
