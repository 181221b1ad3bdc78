package dto

import (
	"time"

	"github.com/spec-kit/process-tracker/internal/domain"
)

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest payload for admin user provisioning.
type CreateUserRequest struct {
	Name                string             `json:"name"`
	Email               string             `json:"email"`
	Password            string             `json:"password"`
	Profile             domain.UserProfile `json:"profile"`
	AssignedDepartments []string           `json:"assigned_departments"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Email               string             `json:"email"`
	Profile             domain.UserProfile `json:"profile"`
	AssignedDepartments []string           `json:"assigned_departments"`
}
