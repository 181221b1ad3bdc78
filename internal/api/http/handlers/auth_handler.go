package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/process-tracker/internal/api/dto"
	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/service"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// AuthHandler exposes login and user provisioning.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(user),
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// CreateUser handles POST /users.
func (h *AuthHandler) CreateUser(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.auth.CreateUser(c.UserContext(), actor, service.UserCreateInput{
		Name:                req.Name,
		Email:               req.Email,
		Password:            req.Password,
		Profile:             req.Profile,
		AssignedDepartments: req.AssignedDepartments,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

func userResponse(user *domain.User) dto.UserResponse {
	departments := user.AssignedDepartments
	if departments == nil {
		departments = []string{}
	}
	return dto.UserResponse{
		ID:                  user.ID,
		Name:                user.Name,
		Email:               user.Email,
		Profile:             user.Profile,
		AssignedDepartments: departments,
	}
}
