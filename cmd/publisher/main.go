// Command publisher emits signed content events against a live topology.
// It is the operational counterpart of the CMS host's publish hook: useful
// for smoke-testing the pipeline, including the dead-letter path via a
// deliberately mis-signed event.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/config"
	"github.com/contentsrus/eventing-svc/internal/logger"
	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
	"github.com/contentsrus/eventing-svc/internal/publisher"
	"github.com/contentsrus/eventing-svc/internal/security"
)

func main() {
	action := flag.String("action", "create", "event to emit: create, update, delete or bad-signature")
	title := flag.String("title", "Sample Article", "content title")
	slug := flag.String("slug", "sample-article", "content slug")
	pageType := flag.String("type", "StandardPage", "content type id")
	body := flag.String("body", "Hello from the eventing publisher.", "main region content")
	authorName := flag.String("author", "Jane Editor", "author name")
	authorEmail := flag.String("email", "jane@example.com", "author email")
	flag.Parse()

	_ = godotenv.Load()

	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Security.SigningKey == "" {
		logger.Fatal("EVENT_SIGNING_KEY must be set to publish signed events")
	}

	m := metrics.New(prometheus.NewRegistry())

	pub := publisher.New(&cfg.RabbitMQ, &cfg.Topology, logger.Logger, m)
	if err := pub.Initialize(); err != nil {
		logger.Fatal("Failed to initialize publisher", zap.Error(err))
	}
	defer pub.Close()

	event, routingKey, err := buildEvent(*action, *title, *slug, *pageType, *body, *authorName, *authorEmail, cfg.Security.SigningKey)
	if err != nil {
		logger.Fatal("Failed to build event", zap.Error(err))
	}

	if err := pub.Publish(event, routingKey); err != nil {
		logger.Fatal("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}

	logger.Info("Event published",
		zap.String("action", *action),
		zap.String("event_id", event.ID.String()),
		zap.String("routing_key", routingKey),
	)
}

func buildEvent(action, title, slug, pageType, body, authorName, authorEmail, signingKey string) (*models.SecureContentEvent, string, error) {
	author := &models.AuthorData{Name: authorName, Email: authorEmail}

	switch action {
	case "create":
		event, err := security.NewSignedEvent(
			"New Content Published",
			&models.ContentData{
				Title:   title,
				Slug:    slug,
				Type:    pageType,
				Regions: map[string]interface{}{"main": body},
			},
			author, authorEmail, signingKey,
		)
		return event, models.RoutingKeyPageCreate, err

	case "update":
		event, err := security.NewSignedEvent(
			"Content Update",
			&models.ContentData{
				Title:   title,
				Slug:    slug,
				Type:    pageType,
				Regions: map[string]interface{}{"main": body},
			},
			author, authorEmail, signingKey,
		)
		return event, models.RoutingKeyPageUpdate, err

	case "delete":
		// Deletes are looked up by title on the consuming side
		event, err := security.NewSignedEvent(
			"Content Deleted",
			&models.ContentData{Title: title},
			author, authorEmail, signingKey,
		)
		return event, models.RoutingKeyPageDelete, err

	case "bad-signature":
		// Signed with the wrong key: the listener must reject it and the
		// DLQ consumer must capture it
		event, err := security.NewSignedEvent(
			"New Content Published",
			&models.ContentData{
				Title:   title,
				Slug:    slug,
				Type:    pageType,
				Regions: map[string]interface{}{"main": body},
			},
			author, authorEmail, signingKey+"-wrong",
		)
		return event, models.RoutingKeyPageCreate, err

	default:
		return nil, "", fmt.Errorf("unknown action %q", action)
	}
}
