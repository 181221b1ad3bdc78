package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/process-tracker/internal/api/http/handlers"
	"github.com/spec-kit/process-tracker/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Departments    *handlers.DepartmentsHandler
	Processes      *handlers.ProcessesHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireUser())
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/users", auth.RequireAdmin(), cfg.Auth.CreateUser)

	protected.Get("/departments", cfg.Departments.List)
	protected.Post("/departments", auth.RequireAdmin(), cfg.Departments.Create)
	protected.Put("/departments/:id", auth.RequireAdmin(), cfg.Departments.Update)

	protected.Get("/processes", cfg.Processes.List)
	protected.Post("/processes", cfg.Processes.Create)
	protected.Delete("/processes", auth.RequireAdmin(), cfg.Processes.Delete)
	protected.Get("/processes/:id", cfg.Processes.Get)
	protected.Get("/processes/:id/history", cfg.Processes.History)
	protected.Post("/processes/:id/start", cfg.Processes.Start)
	protected.Post("/processes/:id/advance", cfg.Processes.Advance)
	protected.Post("/processes/:id/revert", cfg.Processes.Revert)
	protected.Post("/processes/:id/accept", cfg.Processes.Accept)
	protected.Put("/processes/:id/type", cfg.Processes.UpdateType)
	protected.Put("/processes/:id/status", auth.RequireAdmin(), cfg.Processes.UpdateStatus)
	protected.Put("/processes/:id/responsible", auth.RequireAdmin(), cfg.Processes.Reassign)

	protected.Get("/notifications", cfg.Notifications.List)
	protected.Post("/notifications/:id/read", cfg.Notifications.MarkRead)
}
