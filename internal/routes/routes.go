// Package routes wires the listener process HTTP surface. The process is
// a message consumer; its only endpoints are operational (metrics serve on
// their own port).
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/contentsrus/eventing-svc/internal/handlers"
)

// SetupRoutes registers the operational endpoints.
func SetupRoutes(app *fiber.App, healthHandler *handlers.HealthHandler) {
	app.Get("/health", healthHandler.HealthCheck)
}
