// Package contentstore provides the PostgreSQL-backed reference
// implementation of the content repository.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contentsrus/eventing-svc/internal/content"
)

// PageRecord is the persisted form of a content page.
type PageRecord struct {
	ID          uuid.UUID              `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Title       string                 `gorm:"not null" json:"title"`
	Slug        string                 `gorm:"index" json:"slug"`
	Type        string                 `json:"type"`
	Regions     map[string]interface{} `gorm:"type:jsonb" json:"regions"`
	AuthorName  string                 `json:"author_name"`
	AuthorEmail string                 `json:"author_email"`
	CreatedAt   time.Time              `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time              `gorm:"not null;default:now()" json:"updated_at"`
}

func (PageRecord) TableName() string {
	return "pages"
}

// Store implements content.Repository on top of GORM.
type Store struct {
	db *gorm.DB
}

// New creates a page store backed by the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func recordFromPage(page *content.Page) *PageRecord {
	return &PageRecord{
		ID:          page.ID,
		Title:       page.Title,
		Slug:        page.Slug,
		Type:        page.Type,
		Regions:     page.Regions,
		AuthorName:  page.AuthorName,
		AuthorEmail: page.AuthorEmail,
		CreatedAt:   page.CreatedAt,
		UpdatedAt:   page.UpdatedAt,
	}
}

func pageFromRecord(record *PageRecord) *content.Page {
	return &content.Page{
		ID:          record.ID,
		Title:       record.Title,
		Slug:        record.Slug,
		Type:        record.Type,
		Regions:     record.Regions,
		AuthorName:  record.AuthorName,
		AuthorEmail: record.AuthorEmail,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func (s *Store) Create(ctx context.Context, page *content.Page) error {
	record := recordFromPage(page)
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	page.ID = record.ID
	page.CreatedAt = record.CreatedAt
	page.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *Store) Update(ctx context.Context, page *content.Page) error {
	record := recordFromPage(page)
	record.UpdatedAt = time.Now().UTC()

	result := s.db.WithContext(ctx).Model(&PageRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"title":        record.Title,
			"slug":         record.Slug,
			"type":         record.Type,
			"regions":      record.Regions,
			"author_name":  record.AuthorName,
			"author_email": record.AuthorEmail,
			"updated_at":   record.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update page: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return content.ErrPageNotFound
	}
	return nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (*content.Page, error) {
	var record PageRecord
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, content.ErrPageNotFound
		}
		return nil, fmt.Errorf("failed to get page by slug: %w", err)
	}
	return pageFromRecord(&record), nil
}

func (s *Store) List(ctx context.Context) ([]content.Page, error) {
	var records []PageRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	pages := make([]content.Page, 0, len(records))
	for i := range records {
		pages = append(pages, *pageFromRecord(&records[i]))
	}
	return pages, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&PageRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete page: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return content.ErrPageNotFound
	}
	return nil
}
