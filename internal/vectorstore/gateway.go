// Package vectorstore provides the gateway to named vector collections.
package vectorstore

import (
	"context"
	"time"
)

// Hit is a single similarity-search match.
type Hit struct {
	// ID is the point identifier.
	ID string

	// Score is the raw similarity score, descending within a result set.
	Score float64

	// Payload carries the stored document fields. Well-known keys:
	// "content", "timestamp" (RFC 3339), "category", "user_id".
	Payload map[string]any
}

// Filter constrains a search by payload metadata.
type Filter struct {
	// UserID restricts hits to one user's documents.
	UserID string

	// Categories restricts hits to any of the given categories.
	Categories []string

	// Tags restricts hits to documents carrying all given tags.
	Tags []string
}

// Gateway is the capability interface over named vector collections.
// Implementations must support concurrent per-collection searches.
type Gateway interface {
	// Search returns up to topK hits ordered by descending score.
	// Fewer than topK hits may be returned.
	Search(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]Hit, error)

	// Close releases resources.
	Close() error
}

// Timestamp extracts the RFC 3339 timestamp from a hit payload, if present.
func (h Hit) Timestamp() (time.Time, bool) {
	raw, ok := h.Payload["timestamp"]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Content extracts the text payload from a hit, if present.
func (h Hit) Content() string {
	if s, ok := h.Payload["content"].(string); ok {
		return s
	}
	return ""
}
