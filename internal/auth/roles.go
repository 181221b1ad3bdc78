package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// RequireAdmin ensures the caller has the admin profile.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !user.IsAdmin() {
			return apperrors.NewForbidden("admin profile required")
		}
		return c.Next()
	}
}

// RequireUser ensures some user is authenticated.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := UserFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
