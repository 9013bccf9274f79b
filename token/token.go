package token

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyToken identifies a logical mutation so that retries of the
// same request are applied at most once.
//
// A token is backed by a time-ordered UUID v7 for uniqueness plus a
// generation timestamp for traceability. Tokens are immutable; a token is
// created by the caller (or via Generate), attached to at most one logical
// mutation and never reused for another.
//
// Typical usage:
//
//	tok := token.Generate()
//	value := tok.AsString()
//	// store value alongside the request, replay it on retry
type IdempotencyToken struct {
	tokenID        string
	generationTime time.Time
}

// New creates a token from an existing identifier, stamped with the current
// instant. The identifier must be a well-formed UUID string.
func New(tokenID string) (*IdempotencyToken, error) {
	return NewAt(tokenID, time.Now())
}

// NewAt creates a token with an explicit identifier and generation instant.
// The identifier must be a well-formed UUID string.
func NewAt(tokenID string, generationTime time.Time) (*IdempotencyToken, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("tokenId must not be empty")
	}
	if _, err := uuid.Parse(tokenID); err != nil {
		return nil, fmt.Errorf("tokenId must be a valid UUID string: %w", err)
	}
	if generationTime.IsZero() {
		return nil, fmt.Errorf("generationTime must not be zero")
	}
	return &IdempotencyToken{tokenID: tokenID, generationTime: generationTime}, nil
}

// Generate creates a fresh token backed by a cryptographically secure
// UUID v7.
func Generate() *IdempotencyToken {
	return &IdempotencyToken{
		tokenID:        GenerateV7AsString(),
		generationTime: time.Now(),
	}
}

// Parse reconstructs a token from its serialized form, rejecting anything
// that is not a well-formed UUID.
func Parse(s string) (*IdempotencyToken, error) {
	return New(s)
}

// ID returns the token identifier (the UUID string).
func (t *IdempotencyToken) ID() string {
	return t.tokenID
}

// GenerationTime returns the instant the token was created.
func (t *IdempotencyToken) GenerationTime() time.Time {
	return t.generationTime
}

// AsString returns the serialized representation of the token: exactly the
// UUID string, suitable for APIs, logs and storage.
func (t *IdempotencyToken) AsString() string {
	return t.tokenID
}

// Equal reports whether two tokens carry the same identifier and the same
// generation instant.
func (t *IdempotencyToken) Equal(other *IdempotencyToken) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.tokenID == other.tokenID && t.generationTime.Equal(other.generationTime)
}

// String renders the token for logs.
func (t *IdempotencyToken) String() string {
	return fmt.Sprintf("IdempotencyToken(tokenId=%s, generationTime=%s)",
		t.tokenID, t.generationTime.Format(time.RFC3339Nano))
}
