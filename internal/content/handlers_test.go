package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/contentsrus/eventing-svc/internal/metrics"
	"github.com/contentsrus/eventing-svc/internal/models"
)

// fakeRepository is an in-memory Repository with injectable failures.
type fakeRepository struct {
	pages []Page

	createErr error
	updateErr error
	listErr   error
	deleteErr error

	creates int
	updates int
	deletes []uuid.UUID
}

func (f *fakeRepository) Create(ctx context.Context, page *Page) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.creates++
	f.pages = append(f.pages, *page)
	return nil
}

func (f *fakeRepository) Update(ctx context.Context, page *Page) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	for i := range f.pages {
		if f.pages[i].ID == page.ID {
			f.pages[i] = *page
			return nil
		}
	}
	return ErrPageNotFound
}

func (f *fakeRepository) GetBySlug(ctx context.Context, slug string) (*Page, error) {
	for i := range f.pages {
		if f.pages[i].Slug == slug {
			page := f.pages[i]
			return &page, nil
		}
	}
	return nil, ErrPageNotFound
}

func (f *fakeRepository) List(ctx context.Context) ([]Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Page(nil), f.pages...), nil
}

func (f *fakeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, id)
	for i := range f.pages {
		if f.pages[i].ID == id {
			f.pages = append(f.pages[:i], f.pages[i+1:]...)
			return nil
		}
	}
	return ErrPageNotFound
}

func newTestHandlers(repo Repository) (*Handlers, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewHandlers(repo, zap.NewNop(), m), m
}

func contentEvent(title, slug string) *models.SecureContentEvent {
	return &models.SecureContentEvent{
		ID:        uuid.New(),
		Name:      "New Content Published",
		CreatedAt: time.Now().UTC(),
		Content: &models.ContentData{
			Title:   title,
			Slug:    slug,
			Type:    "StandardPage",
			Regions: map[string]interface{}{"main": "body"},
		},
		Author: &models.AuthorData{
			Name:  "Jane Editor",
			Email: "jane@example.com",
		},
		HashedUserID: "abc1234567",
	}
}

func TestHandleCreate(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	h, m := newTestHandlers(repo)

	if err := h.HandleCreate(context.Background(), contentEvent("Sample", "sample")); err != nil {
		t.Fatalf("HandleCreate error: %v", err)
	}

	if repo.creates != 1 {
		t.Fatalf("expected one create, got %d", repo.creates)
	}
	page := repo.pages[0]
	if page.Title != "Sample" || page.Slug != "sample" || page.AuthorEmail != "jane@example.com" {
		t.Fatalf("persisted page has wrong fields: %+v", page)
	}
	if got := testutil.ToFloat64(m.ContentCreateAttempts); got != 1 {
		t.Fatalf("listener_content_create_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContentCreateFailures); got != 0 {
		t.Fatalf("listener_content_create_failures_total = %v, want 0", got)
	}
}

func TestHandleCreateRepositoryFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{createErr: errors.New("database unavailable")}
	h, m := newTestHandlers(repo)

	if err := h.HandleCreate(context.Background(), contentEvent("Sample", "sample")); err == nil {
		t.Fatal("expected an error when the repository create fails")
	}
	if got := testutil.ToFloat64(m.ContentCreateAttempts); got != 1 {
		t.Fatalf("listener_content_create_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContentCreateFailures); got != 1 {
		t.Fatalf("listener_content_create_failures_total = %v, want 1", got)
	}
}

func TestHandleUpdateExistingPage(t *testing.T) {
	t.Parallel()

	existing := Page{
		ID:    uuid.New(),
		Title: "Old Title",
		Slug:  "sample",
		Type:  "StandardPage",
	}
	repo := &fakeRepository{pages: []Page{existing}}
	h, _ := newTestHandlers(repo)

	if err := h.HandleUpdate(context.Background(), contentEvent("New Title", "sample")); err != nil {
		t.Fatalf("HandleUpdate error: %v", err)
	}

	if repo.updates != 1 {
		t.Fatalf("expected one update, got %d", repo.updates)
	}
	if repo.creates != 0 {
		t.Fatalf("expected no creates, got %d", repo.creates)
	}
	if repo.pages[0].Title != "New Title" {
		t.Fatalf("title not updated: %q", repo.pages[0].Title)
	}
	if repo.pages[0].ID != existing.ID {
		t.Fatal("update replaced the page instead of mutating it")
	}
}

func TestHandleUpdateUnknownSlugCreates(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	h, m := newTestHandlers(repo)

	if err := h.HandleUpdate(context.Background(), contentEvent("Sample", "never-seen")); err != nil {
		t.Fatalf("HandleUpdate error: %v", err)
	}

	// Update before create is upserted, not dropped.
	if repo.creates != 1 || repo.updates != 0 {
		t.Fatalf("expected upsert via create, got creates=%d updates=%d", repo.creates, repo.updates)
	}
	if got := testutil.ToFloat64(m.ContentCreateAttempts); got != 1 {
		t.Fatalf("listener_content_create_attempts_total = %v, want 1", got)
	}
}

func TestHandleDelete(t *testing.T) {
	t.Parallel()

	target := Page{ID: uuid.New(), Title: "Sample Article", Slug: "sample-article"}
	other := Page{ID: uuid.New(), Title: "Other", Slug: "other"}
	repo := &fakeRepository{pages: []Page{other, target}}
	h, m := newTestHandlers(repo)

	// Title match is case-insensitive.
	if err := h.HandleDelete(context.Background(), contentEvent("sAmPlE aRtIcLe", "ignored")); err != nil {
		t.Fatalf("HandleDelete error: %v", err)
	}

	if len(repo.deletes) != 1 || repo.deletes[0] != target.ID {
		t.Fatalf("expected exactly the target page deleted, got %v", repo.deletes)
	}
	if got := testutil.ToFloat64(m.ContentDeleteAttempts); got != 1 {
		t.Fatalf("listener_content_delete_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContentDeleteFailures); got != 0 {
		t.Fatalf("listener_content_delete_failures_total = %v, want 0", got)
	}
}

func TestHandleDeleteFirstMatchWins(t *testing.T) {
	t.Parallel()

	first := Page{ID: uuid.New(), Title: "Duplicate", Slug: "duplicate-1"}
	second := Page{ID: uuid.New(), Title: "Duplicate", Slug: "duplicate-2"}
	repo := &fakeRepository{pages: []Page{first, second}}
	h, _ := newTestHandlers(repo)

	if err := h.HandleDelete(context.Background(), contentEvent("Duplicate", "ignored")); err != nil {
		t.Fatalf("HandleDelete error: %v", err)
	}

	if len(repo.deletes) != 1 || repo.deletes[0] != first.ID {
		t.Fatalf("expected only the first matching page deleted, got %v", repo.deletes)
	}
	if len(repo.pages) != 1 || repo.pages[0].ID != second.ID {
		t.Fatalf("expected the second duplicate to survive, got %+v", repo.pages)
	}
}

func TestHandleDeleteNoMatchIsNoOp(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{pages: []Page{{ID: uuid.New(), Title: "Other", Slug: "other"}}}
	h, m := newTestHandlers(repo)

	if err := h.HandleDelete(context.Background(), contentEvent("Missing", "ignored")); err != nil {
		t.Fatalf("expected nil error for zero matches, got %v", err)
	}

	if len(repo.deletes) != 0 {
		t.Fatalf("expected no deletions, got %v", repo.deletes)
	}
	if got := testutil.ToFloat64(m.ContentDeleteAttempts); got != 1 {
		t.Fatalf("listener_content_delete_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContentDeleteFailures); got != 0 {
		t.Fatalf("listener_content_delete_failures_total = %v, want 0", got)
	}
}

func TestHandleDeleteRepositoryFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{listErr: errors.New("database unavailable")}
	h, m := newTestHandlers(repo)

	if err := h.HandleDelete(context.Background(), contentEvent("Sample", "ignored")); err == nil {
		t.Fatal("expected an error when listing fails")
	}
	if got := testutil.ToFloat64(m.ContentDeleteFailures); got != 1 {
		t.Fatalf("listener_content_delete_failures_total = %v, want 1", got)
	}
}
