// Package retrieval turns free-text queries into ranked context snippets
// drawn from multiple vector collections.
package retrieval

import "time"

// Result is a single retrieved context snippet.
type Result struct {
	// ID is the source point identifier.
	ID string `json:"id"`

	// Collection is the source collection name.
	Collection string `json:"collection"`

	// Score is the raw similarity score from the vector store.
	Score float64 `json:"score"`

	// CompositeScore is the re-ranked score combining raw similarity,
	// recency and diversity.
	CompositeScore float64 `json:"composite_score"`

	// Content is the text payload.
	Content string `json:"content"`

	// Metadata carries the remaining payload fields.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp is the parsed document timestamp, zero when absent.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Warning reports a degraded (but not failed) retrieval step.
type Warning struct {
	// Collection is the collection that failed.
	Collection string `json:"collection"`

	// Message describes the failure.
	Message string `json:"message"`
}

// Options tune one retrieval call. Zero values fall back to configuration.
type Options struct {
	// TopK limits the number of returned results.
	TopK int `json:"top_k"`

	// Collections restricts the search to the named collections.
	// Empty means all configured collections.
	Collections []string `json:"collections"`

	// ScoreThreshold overrides the configured threshold when > 0.
	ScoreThreshold float64 `json:"score_threshold"`
}

// RankConfig tunes the re-ranking pass.
type RankConfig struct {
	// TopK truncates the ranked output.
	TopK int

	// ScoreThreshold drops results with a lower raw score.
	ScoreThreshold float64

	// DiversityWeight is the composite-score share of the diversity boost.
	DiversityWeight float64

	// RecencyWeight is the composite-score share of the recency factor.
	RecencyWeight float64

	// RecencyHalfLife controls the exponential age decay.
	RecencyHalfLife time.Duration

	// Now anchors recency computation; zero means time.Now().
	Now time.Time
}
