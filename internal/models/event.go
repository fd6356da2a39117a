package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Routing keys understood by the listener. The work queue is bound with a
// topic pattern (page.*.request) so all three arrive on the same queue.
const (
	RoutingKeyPageCreate = "page.create.request"
	RoutingKeyPageUpdate = "page.update.request"
	RoutingKeyPageDelete = "page.delete.request"
)

// SecureContentEvent is the signed wire envelope for one domain event.
// The signature is an HMAC-SHA256 over the canonical JSON serialization of
// every other field; mutating any of them after signing invalidates it.
type SecureContentEvent struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	CreatedAt    time.Time    `json:"createdAt"`
	Content      *ContentData `json:"content,omitempty"`
	Author       *AuthorData  `json:"author,omitempty"`
	HashedUserID string       `json:"hashedUserId"`
	Signature    string       `json:"signature,omitempty"`
}

// ContentData is the projected state of the mutated entity.
type ContentData struct {
	Title   string                 `json:"title"`
	Slug    string                 `json:"slug,omitempty"`
	Type    string                 `json:"type,omitempty"`
	Regions map[string]interface{} `json:"regions,omitempty"`
}

// AuthorData identifies the acting author. The raw user id never travels
// on the wire; only HashedUserID on the envelope does.
type AuthorData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ValidationError reports a missing or invalid required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	errMsg := "validation failed"
	if e != nil && e.Field != "" {
		errMsg += ": " + e.Field
	}
	if e != nil && e.Reason != "" {
		errMsg += ": " + e.Reason
	}
	return errMsg
}

// Validate checks the required fields of the envelope. It returns a typed
// *ValidationError naming the first field that fails, in a fixed order so
// rejection logs are stable.
func (e *SecureContentEvent) Validate() error {
	if e == nil {
		return &ValidationError{Field: "event", Reason: "is nil"}
	}
	if e.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "is missing"}
	}
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is missing"}
	}
	if e.Content == nil {
		return &ValidationError{Field: "content", Reason: "is missing"}
	}
	if strings.TrimSpace(e.Content.Title) == "" {
		return &ValidationError{Field: "content.title", Reason: "is missing"}
	}
	if e.Author == nil {
		return &ValidationError{Field: "author", Reason: "is missing"}
	}
	if strings.TrimSpace(e.HashedUserID) == "" {
		return &ValidationError{Field: "hashedUserId", Reason: "is missing"}
	}
	return nil
}
