// Package embedding wraps the external embedding capability with a
// content-addressable cache.
package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/pkg/hash"
	"github.com/nivesh/finassist/internal/pkg/logger"
)

// Embedding is an immutable vector representation of a text.
type Embedding struct {
	// Vector is the fixed-dimension embedding.
	Vector []float32 `json:"vector"`

	// Model is the model identifier that produced the vector.
	Model string `json:"model"`

	// ContentHash identifies the normalized source text.
	ContentHash string `json:"content_hash"`
}

// Service generates embeddings, deduplicating requests through the cache.
type Service struct {
	gen   Generator
	cache *Cache
	log   *logger.Logger
}

// NewService creates an embedding service.
func NewService(gen Generator, cacheSize int, log *logger.Logger) *Service {
	return &Service{
		gen:   gen,
		cache: NewCache(gen.Model(), cacheSize),
		log:   log,
	}
}

// Embed generates an embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, errors.InvalidInputError("text is empty")
	}

	if vec, ok := s.cache.Get(text); ok {
		return s.toEmbedding(text, vec), nil
	}

	vectors, err := s.gen.Generate(ctx, []string{text})
	if err != nil {
		return Embedding{}, errors.EmbeddingUnavailableError(err)
	}
	if len(vectors) != 1 {
		return Embedding{}, errors.EmbeddingUnavailableError(
			fmt.Errorf("generator returned %d vectors for 1 text", len(vectors)))
	}

	s.cache.Set(text, vectors[0])
	return s.toEmbedding(text, vectors[0]), nil
}

// EmbedBatch generates embeddings for texts, preserving input order.
// Cache misses are sent to the generator in a single batched call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	out := make([]Embedding, len(texts))

	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, errors.InvalidInputError("text is empty").
				WithDetail("index", strconv.Itoa(i))
		}
		if vec, ok := s.cache.Get(text); ok {
			out[i] = s.toEmbedding(text, vec)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := s.gen.Generate(ctx, missTexts)
	if err != nil {
		return nil, errors.EmbeddingUnavailableError(err)
	}
	if len(vectors) != len(missTexts) {
		return nil, errors.EmbeddingUnavailableError(
			fmt.Errorf("generator returned %d vectors for %d texts", len(vectors), len(missTexts)))
	}
	s.log.Debug("generated embeddings", "misses", len(missTexts), "total", len(texts))

	for j, vec := range vectors {
		i := missIdx[j]
		s.cache.Set(texts[i], vec)
		out[i] = s.toEmbedding(texts[i], vec)
	}

	return out, nil
}

// CacheStats exposes cache statistics for diagnostics.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Service) toEmbedding(text string, vec []float32) Embedding {
	return Embedding{
		Vector:      vec,
		Model:       s.gen.Model(),
		ContentHash: hash.ContentHash(text),
	}
}
