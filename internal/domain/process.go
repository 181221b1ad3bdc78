package domain

import "time"

// ProcessStatus enumerates process lifecycle states.
type ProcessStatus string

const (
	ProcessStatusNotStarted ProcessStatus = "not_started"
	ProcessStatusPending    ProcessStatus = "pending"
	ProcessStatusOverdue    ProcessStatus = "overdue"
	ProcessStatusCompleted  ProcessStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s ProcessStatus) Valid() bool {
	switch s {
	case ProcessStatusNotStarted, ProcessStatusPending, ProcessStatusOverdue, ProcessStatusCompleted:
		return true
	}
	return false
}

// Process is a protocol tracked through the department pipeline.
type Process struct {
	ID                  string
	ProtocolNumber      string
	ProcessType         *string
	CurrentDepartmentID *string
	StartDate           *time.Time
	ExpectedEndDate     *time.Time
	Status              ProcessStatus
	ResponsibleUserID   *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Started reports whether the process has entered the pipeline.
func (p *Process) Started() bool {
	return p.Status != ProcessStatusNotStarted && p.CurrentDepartmentID != nil
}

// HasProcessType reports whether a non-empty process type is set.
func (p *Process) HasProcessType() bool {
	return p.ProcessType != nil && *p.ProcessType != ""
}

// InDepartment reports whether the process currently sits in departmentID.
func (p *Process) InDepartment(departmentID string) bool {
	return p.CurrentDepartmentID != nil && *p.CurrentDepartmentID == departmentID
}
