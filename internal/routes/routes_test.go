package routes

import (
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/contentsrus/eventing-svc/internal/handlers"
)

func TestSetupRoutes(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	SetupRoutes(app, handlers.NewHealthHandler(nil, nil, nil))

	foundHealth := false
	for _, route := range app.GetRoutes() {
		if route.Method == fiber.MethodGet && route.Path == "/health" {
			foundHealth = true
		}
		if strings.HasPrefix(route.Path, "/api") {
			t.Fatalf("unexpected API route registered: %s %s", route.Method, route.Path)
		}
	}
	if !foundHealth {
		t.Fatal("GET /health is not registered")
	}
}
