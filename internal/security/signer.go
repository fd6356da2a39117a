// Package security implements canonical-JSON HMAC signing and verification
// for secure content events, plus one-way hashing of user identifiers.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentsrus/eventing-svc/internal/models"
)

// ErrSigningKeyMissing indicates the shared HMAC secret is not configured.
// This is a configuration fault, not a per-message verification failure.
var ErrSigningKeyMissing = errors.New("signing key is not configured")

// hashedUserIDLength is the number of base64 characters kept from the
// SHA-256 digest. The truncation is intentionally lossy: the hash stands in
// for the user id for correlation, never for identity.
const hashedUserIDLength = 10

// canonicalJSON serializes the event deterministically for signing: fields
// in declaration order, camelCase keys, nil sub-objects omitted and the
// signature field always excluded. Signer and verifier must both go through
// this function; two events with equal field values always produce the same
// byte sequence regardless of the key order of any JSON they were decoded
// from.
func canonicalJSON(event *models.SecureContentEvent) ([]byte, error) {
	clone := *event
	clone.Signature = ""
	return json.Marshal(&clone)
}

// Sign computes the lowercase-hex HMAC-SHA256 signature of the event's
// canonical JSON, excluding the signature field itself.
func Sign(event *models.SecureContentEvent, secretKey string) (string, error) {
	if secretKey == "" {
		return "", ErrSigningKeyMissing
	}
	if event == nil {
		return "", fmt.Errorf("cannot sign a nil event")
	}

	payload, err := canonicalJSON(event)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event for signing: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over the event (with its signature field
// excluded) and compares it to the claimed one. Any internal failure during
// recomputation yields false; verification failure is data, not an
// exceptional condition. Callers must check for a configured key via Sign
// or ErrSigningKeyMissing before trusting a false result.
func Verify(event *models.SecureContentEvent, claimedSignature, secretKey string) bool {
	if claimedSignature == "" {
		return false
	}
	expected, err := Sign(event, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(claimedSignature))
}

// HashUserID returns a short one-way hash of a raw user identifier:
// SHA-256 over the UTF-8 bytes, base64 encoded, truncated. An empty input
// yields an empty output. The result must never be treated as a unique key
// across users; collisions are accepted by design for privacy.
func HashUserID(userID string) string {
	if userID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userID))
	return base64.StdEncoding.EncodeToString(sum[:])[:hashedUserIDLength]
}

// NewSignedEvent builds a complete, signed envelope: fresh event id, UTC
// creation timestamp, hashed acting-user id and the HMAC signature over all
// of it.
func NewSignedEvent(name string, content *models.ContentData, author *models.AuthorData, rawUserID, secretKey string) (*models.SecureContentEvent, error) {
	event := &models.SecureContentEvent{
		ID:           uuid.New(),
		Name:         name,
		CreatedAt:    time.Now().UTC(),
		Content:      content,
		Author:       author,
		HashedUserID: HashUserID(rawUserID),
	}

	signature, err := Sign(event, secretKey)
	if err != nil {
		return nil, err
	}
	event.Signature = signature

	return event, nil
}
