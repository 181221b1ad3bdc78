package domain

import "time"

// ResponsibilityAssignment is a user's claim on a process within one department.
type ResponsibilityAssignment struct {
	ProcessID    string
	DepartmentID string
	UserID       string
	AssignedAt   time.Time
}

// ResponsibilityKey identifies a (process, department) pair.
type ResponsibilityKey struct {
	ProcessID    string
	DepartmentID string
}

// String renders the key for cache storage.
func (k ResponsibilityKey) String() string {
	return k.ProcessID + ":" + k.DepartmentID
}
