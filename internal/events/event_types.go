package events

import (
	"time"

	"github.com/spec-kit/process-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventProcessStarted         EventType = "process_started"
	EventProcessMoved           EventType = "process_moved"
	EventResponsibilityAccepted EventType = "responsibility_accepted"
)

// Direction tells forward moves from backward ones.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ProcessID string      `json:"process_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ProcessMovedPayload describes a department transition. Started transitions
// use it too, with an empty FromDepartmentID.
type ProcessMovedPayload struct {
	ProtocolNumber   string               `json:"protocol_number"`
	FromDepartmentID string               `json:"from_department_id,omitempty"`
	ToDepartmentID   string               `json:"to_department_id"`
	ToDepartmentName string               `json:"to_department_name"`
	Direction        Direction            `json:"direction"`
	NewStatus        domain.ProcessStatus `json:"new_status"`
}

// ResponsibilityAcceptedPayload payload.
type ResponsibilityAcceptedPayload struct {
	DepartmentID string `json:"department_id"`
	UserID       string `json:"user_id"`
}
