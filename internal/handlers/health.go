package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/contentsrus/eventing-svc/internal/database"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
)

// HealthHandler reports the status of the listener process dependencies.
type HealthHandler struct {
	db           *gorm.DB
	listenerConn *rabbitmq.Connection
	dlqConn      *rabbitmq.Connection
}

// NewHealthHandler creates a health handler with its dependencies.
func NewHealthHandler(db *gorm.DB, listenerConn, dlqConn *rabbitmq.Connection) *HealthHandler {
	return &HealthHandler{
		db:           db,
		listenerConn: listenerConn,
		dlqConn:      dlqConn,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	// Check database
	if err := database.HealthCheck(ctx, h.db); err != nil {
		services["database"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	// Check listener broker connection
	if h.listenerConn == nil || !h.listenerConn.IsHealthy() {
		services["rabbitmq_listener"] = "unhealthy: connection closed"
		status = "unhealthy"
	} else {
		services["rabbitmq_listener"] = "healthy"
	}

	// Check DLQ consumer broker connection
	if h.dlqConn == nil || !h.dlqConn.IsHealthy() {
		services["rabbitmq_dlq"] = "unhealthy: connection closed"
		status = "unhealthy"
	} else {
		services["rabbitmq_dlq"] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}
