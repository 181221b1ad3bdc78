package dto

import (
	"time"

	"github.com/spec-kit/process-tracker/internal/domain"
)

// NotificationResponse is one inbox item.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	ProcessID string                  `json:"process_id"`
	Message   string                  `json:"message"`
	Type      domain.NotificationType `json:"type"`
	Read      bool                    `json:"read"`
	Responded bool                    `json:"responded"`
	CreatedAt time.Time               `json:"created_at"`
}
