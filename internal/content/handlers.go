package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
)

// Handlers implements the routing-key-specific callbacks invoked by the
// listener for page create, update and delete events.
type Handlers struct {
	repo    Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandlers creates the content handlers with their dependencies.
func NewHandlers(repo Repository, logger *zap.Logger, m *metrics.Metrics) *Handlers {
	return &Handlers{
		repo:    repo,
		logger:  logger,
		metrics: m,
	}
}

func pageFromEvent(event *models.SecureContentEvent) *Page {
	page := &Page{
		ID:      uuid.New(),
		Title:   event.Content.Title,
		Slug:    event.Content.Slug,
		Type:    event.Content.Type,
		Regions: event.Content.Regions,
	}
	if event.Author != nil {
		page.AuthorName = event.Author.Name
		page.AuthorEmail = event.Author.Email
	}
	return page
}

// HandleCreate creates a new page from the event's content projection.
func (h *Handlers) HandleCreate(ctx context.Context, event *models.SecureContentEvent) error {
	h.metrics.ContentCreateAttempts.Inc()
	start := time.Now()
	defer func() {
		h.metrics.ContentCreateDuration.Observe(time.Since(start).Seconds())
	}()

	page := pageFromEvent(event)
	if err := h.repo.Create(ctx, page); err != nil {
		h.metrics.ContentCreateFailures.Inc()
		h.logger.Error("Failed to create content",
			zap.String("event_id", event.ID.String()),
			zap.String("title", page.Title),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create content %q: %w", page.Title, err)
	}

	h.logger.Info("Created content",
		zap.String("event_id", event.ID.String()),
		zap.String("page_id", page.ID.String()),
		zap.String("title", page.Title),
		zap.String("slug", page.Slug),
	)
	return nil
}

// HandleUpdate updates the page matching the event's slug, creating it if
// no such page exists yet. Update events can legitimately arrive before
// their create under at-least-once delivery.
func (h *Handlers) HandleUpdate(ctx context.Context, event *models.SecureContentEvent) error {
	existing, err := h.repo.GetBySlug(ctx, event.Content.Slug)
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			h.logger.Warn("Update for unknown slug, creating content instead",
				zap.String("event_id", event.ID.String()),
				zap.String("slug", event.Content.Slug),
			)
			return h.HandleCreate(ctx, event)
		}
		h.logger.Error("Failed to look up content for update",
			zap.String("event_id", event.ID.String()),
			zap.String("slug", event.Content.Slug),
			zap.Error(err),
		)
		return fmt.Errorf("failed to look up content %q: %w", event.Content.Slug, err)
	}

	existing.Title = event.Content.Title
	existing.Type = event.Content.Type
	existing.Regions = event.Content.Regions
	if event.Author != nil {
		existing.AuthorName = event.Author.Name
		existing.AuthorEmail = event.Author.Email
	}

	if err := h.repo.Update(ctx, existing); err != nil {
		h.logger.Error("Failed to update content",
			zap.String("event_id", event.ID.String()),
			zap.String("page_id", existing.ID.String()),
			zap.String("title", existing.Title),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update content %q: %w", existing.Title, err)
	}

	h.logger.Info("Updated content",
		zap.String("event_id", event.ID.String()),
		zap.String("page_id", existing.ID.String()),
		zap.String("title", existing.Title),
	)
	return nil
}

// HandleDelete deletes the first page whose title matches the event's
// content title case-insensitively. Zero matches is not an error: the
// delete is a logged no-op and the message is still considered consumed.
// Duplicate titles are not disambiguated; the first match wins.
func (h *Handlers) HandleDelete(ctx context.Context, event *models.SecureContentEvent) error {
	h.metrics.ContentDeleteAttempts.Inc()
	start := time.Now()
	defer func() {
		h.metrics.ContentDeleteDuration.Observe(time.Since(start).Seconds())
	}()

	title := event.Content.Title

	pages, err := h.repo.List(ctx)
	if err != nil {
		h.metrics.ContentDeleteFailures.Inc()
		h.logger.Error("Failed to list content for delete",
			zap.String("event_id", event.ID.String()),
			zap.String("title", title),
			zap.Error(err),
		)
		return fmt.Errorf("failed to list content: %w", err)
	}

	for _, page := range pages {
		if !strings.EqualFold(page.Title, title) {
			continue
		}
		if err := h.repo.Delete(ctx, page.ID); err != nil {
			h.metrics.ContentDeleteFailures.Inc()
			h.logger.Error("Failed to delete content",
				zap.String("event_id", event.ID.String()),
				zap.String("page_id", page.ID.String()),
				zap.String("title", page.Title),
				zap.Error(err),
			)
			return fmt.Errorf("failed to delete content %q: %w", page.Title, err)
		}

		h.logger.Info("Deleted content",
			zap.String("event_id", event.ID.String()),
			zap.String("page_id", page.ID.String()),
			zap.String("title", page.Title),
		)
		return nil
	}

	h.logger.Info("No content matched delete title, nothing to do",
		zap.String("event_id", event.ID.String()),
		zap.String("title", title),
	)
	return nil
}
