package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/content"
	"github.com/contentsrus/eventing-svc/internal/contentstore"
	"github.com/contentsrus/eventing-svc/internal/database"
	"github.com/contentsrus/eventing-svc/internal/dlq"
	"github.com/contentsrus/eventing-svc/internal/handlers"
	"github.com/contentsrus/eventing-svc/internal/listener"
	"github.com/contentsrus/eventing-svc/internal/logger"
	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
	"github.com/contentsrus/eventing-svc/internal/rabbitmq"
	"github.com/contentsrus/eventing-svc/internal/routes"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Metrics registry is built once here and handed to every component
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	go func() {
		if err := metrics.StartServer(metricsCtx, registry, cfg.Metrics.Port, logger.Logger); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	// Connect to PostgreSQL and apply migrations
	if err := database.RunMigrations(&cfg.Database, logger.Logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	db, err := database.Connect(&cfg.Database, logger.Logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger.Logger); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	// Each consumer owns its own broker connection for the process lifetime
	listenerConn := rabbitmq.NewConnection(&cfg.RabbitMQ, "eventing-listener", logger.Logger)
	listenerConn.OnConnected = m.RabbitMQConnections.Inc
	if err := listenerConn.Connect(); err != nil {
		m.RabbitMQSetupFailures.WithLabelValues("connect").Inc()
		logger.Fatal("Failed to connect listener to RabbitMQ", zap.Error(err))
	}
	defer listenerConn.Close()

	dlqConn := rabbitmq.NewConnection(&cfg.RabbitMQ, "eventing-dlq-consumer", logger.Logger)
	if err := dlqConn.Connect(); err != nil {
		logger.Fatal("Failed to connect DLQ consumer to RabbitMQ", zap.Error(err))
	}
	defer dlqConn.Close()

	// Content handlers against the PostgreSQL-backed repository
	store := contentstore.New(db)
	contentHandlers := content.NewHandlers(store, logger.Logger, m)

	lst := listener.New(&cfg.Topology, cfg.Security.SigningKey, listenerConn, logger.Logger, m)
	lst.Register(models.RoutingKeyPageCreate, contentHandlers.HandleCreate)
	lst.Register(models.RoutingKeyPageUpdate, contentHandlers.HandleUpdate)
	lst.Register(models.RoutingKeyPageDelete, contentHandlers.HandleDelete)

	listenerRunning := true
	if err := lst.Start(); err != nil {
		if errors.Is(err, listener.ErrNoSigningKey) {
			// Deployment fault: keep the process (health, metrics, DLQ
			// capture) running so operators see consumer_active at 0
			// instead of a crash loop.
			listenerRunning = false
			logger.Error("Listener disabled: signing key is not configured; set EVENT_SIGNING_KEY and restart",
				zap.Error(err),
			)
		} else {
			logger.Fatal("Failed to start listener", zap.Error(err))
		}
	}

	dlqConsumer := dlq.NewConsumer(&cfg.Topology, &cfg.DLQ, dlqConn, dlq.NewStore(db), logger.Logger)
	if err := dlqConsumer.Start(); err != nil {
		logger.Fatal("Failed to start DLQ consumer", zap.Error(err))
	}

	// Create Fiber app for the operational endpoints
	app := fiber.New(fiber.Config{
		AppName:               "CMS Eventing Listener",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	healthHandler := handlers.NewHealthHandler(db, listenerConn, dlqConn)
	routes.SetupRoutes(app, healthHandler)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	// Stop accepting deliveries and drain in-flight work before the
	// deferred channel/connection closes run
	if listenerRunning {
		lst.Stop()
	}
	dlqConsumer.Stop()
	stopMetrics()

	logger.Info("Shutdown complete")
}
