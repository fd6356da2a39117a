// Package content dispatches validated events into the host's content
// repository. The repository itself is an external collaborator; this
// package only defines the boundary and the handlers that talk across it.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPageNotFound is returned by repository lookups with no match.
var ErrPageNotFound = errors.New("page not found")

// Page is the projection of a content entity exchanged with the
// repository.
type Page struct {
	ID          uuid.UUID
	Title       string
	Slug        string
	Type        string
	Regions     map[string]interface{}
	AuthorName  string
	AuthorEmail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository is the content-management host's persistence boundary. It is
// assumed to be safe for concurrent handler invocations; the listener does
// not serialize access beyond what prefetch bounds.
type Repository interface {
	Create(ctx context.Context, page *Page) error
	Update(ctx context.Context, page *Page) error
	GetBySlug(ctx context.Context, slug string) (*Page, error)
	List(ctx context.Context) ([]Page, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
