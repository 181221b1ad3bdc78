package domain

import "time"

// NotificationType classifies notification records.
type NotificationType string

const (
	NotificationTypeProcessMoved NotificationType = "process_moved"
)

// Notification is a per-user record created by process transitions.
type Notification struct {
	ID        string
	ProcessID string
	UserID    string
	Message   string
	Type      NotificationType
	Read      bool
	Responded bool
	CreatedAt time.Time
}
