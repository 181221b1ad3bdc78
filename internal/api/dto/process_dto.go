package dto

import (
	"time"

	"github.com/spec-kit/process-tracker/internal/domain"
)

// CreateProcessRequest payload.
type CreateProcessRequest struct {
	ProtocolNumber string `json:"protocol_number"`
	ProcessType    string `json:"process_type"`
}

// UpdateProcessTypeRequest payload.
type UpdateProcessTypeRequest struct {
	ProcessType string `json:"process_type"`
}

// UpdateProcessStatusRequest payload.
type UpdateProcessStatusRequest struct {
	Status domain.ProcessStatus `json:"status"`
}

// ReassignRequest payload.
type ReassignRequest struct {
	UserID string `json:"user_id"`
}

// DeleteProcessesRequest payload for bulk removal.
type DeleteProcessesRequest struct {
	IDs []string `json:"ids"`
}

// ProcessResponse is the stored process.
type ProcessResponse struct {
	ID                  string               `json:"id"`
	ProtocolNumber      string               `json:"protocol_number"`
	ProcessType         *string              `json:"process_type"`
	CurrentDepartmentID *string              `json:"current_department_id"`
	StartDate           *time.Time           `json:"start_date"`
	ExpectedEndDate     *time.Time           `json:"expected_end_date"`
	Status              domain.ProcessStatus `json:"status"`
	ResponsibleUserID   *string              `json:"responsible_user_id"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// ProcessViewResponse is a process as seen by the caller.
type ProcessViewResponse struct {
	ProcessResponse
	DerivedStatus     domain.ProcessStatus    `json:"derived_status"`
	CurrentDepartment *DepartmentResponse     `json:"current_department,omitempty"`
	EnteredAt         *time.Time              `json:"entered_at,omitempty"`
	Responsible       *ResponsibilityResponse `json:"responsible,omitempty"`
	Actions           ProcessActions          `json:"actions"`
}

// ProcessActions tells clients which buttons to offer.
type ProcessActions struct {
	CanAccept bool `json:"can_accept"`
	CanMove   bool `json:"can_move"`
}

// ResponsibilityResponse is a claim on a process in a department.
type ResponsibilityResponse struct {
	ProcessID    string    `json:"process_id"`
	DepartmentID string    `json:"department_id"`
	UserID       string    `json:"user_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// HistoryEntryResponse is one department occupancy interval.
type HistoryEntryResponse struct {
	ID           string     `json:"id"`
	DepartmentID string     `json:"department_id"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time"`
	ActingUserID *string    `json:"acting_user_id"`
}
