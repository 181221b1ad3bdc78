package domain

import "time"

// UserProfile distinguishes administrators from regular users.
type UserProfile string

const (
	UserProfileAdmin UserProfile = "admin"
	UserProfileUser  UserProfile = "user"
)

// User is an operator who moves and claims processes.
type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	Active              bool
	Profile             UserProfile
	AssignedDepartments []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsAdmin reports whether the user has the admin profile.
func (u *User) IsAdmin() bool {
	return u != nil && u.Profile == UserProfileAdmin
}

// BelongsTo reports whether departmentID is among the user's assigned departments.
func (u *User) BelongsTo(departmentID string) bool {
	if u == nil {
		return false
	}
	for _, id := range u.AssignedDepartments {
		if id == departmentID {
			return true
		}
	}
	return false
}
