package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/activity-tracker/internal/api/http/handlers"
	"github.com/spec-kit/activity-tracker/internal/auth"
	"github.com/spec-kit/activity-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Status         *handlers.StatusHandler
	ActiveTime     *handlers.ActiveTimeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Users.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Post("/auth/password/change", cfg.Users.ChangePassword)
	protected.Get("/users", cfg.Users.List)

	protected.Get("/status/:userId", cfg.Status.Get)
	protected.Get("/status/:userId/history", cfg.Status.History)
	protected.Put("/status/:userId", auth.RequireSelfOrAdmin("userId"), cfg.Status.Update)
	protected.Post("/status/:userId/toggle", auth.RequireSelfOrAdmin("userId"), cfg.Status.Toggle)

	protected.Get("/active-time", cfg.ActiveTime.ListForDate)
	protected.Get("/active-time/:userId", cfg.ActiveTime.GetForUser)
	protected.Get("/active-users", cfg.ActiveTime.ActiveUsers)

	admin := protected.Group("/active-time/:userId/:date/sessions", auth.RequireRole(domain.UserRoleAdmin))
	admin.Patch("/:index", cfg.ActiveTime.UpdateSessionMemo)
	admin.Delete("/:index", cfg.ActiveTime.DeleteSession)
}
