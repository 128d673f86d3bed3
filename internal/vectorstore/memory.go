package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Doc is a document registered with the in-memory gateway.
type Doc struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// MemoryGateway is an in-memory Gateway using cosine similarity.
// It backs tests and local development without a Qdrant server.
type MemoryGateway struct {
	mu          sync.RWMutex
	collections map[string][]Doc
	closed      bool
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		collections: make(map[string][]Doc),
	}
}

// Add registers a document in a collection.
func (m *MemoryGateway) Add(collection string, doc Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], doc)
}

// Search scores all documents by cosine similarity and returns the top K.
func (m *MemoryGateway) Search(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("gateway is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	if topK <= 0 {
		topK = 10
	}

	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		if !matchesFilter(doc, filter) {
			continue
		}
		hits = append(hits, Hit{
			ID:      doc.ID,
			Score:   cosineSimilarity(vector, doc.Vector),
			Payload: doc.Payload,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

// Close marks the gateway closed.
func (m *MemoryGateway) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.collections = nil
	return nil
}

func matchesFilter(doc Doc, f *Filter) bool {
	if f == nil {
		return true
	}

	if f.UserID != "" {
		if uid, _ := doc.Payload["user_id"].(string); uid != f.UserID {
			return false
		}
	}

	if len(f.Categories) > 0 {
		cat, _ := doc.Payload["category"].(string)
		found := false
		for _, c := range f.Categories {
			if c == cat {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Tags) > 0 {
		raw, _ := doc.Payload["tags"].([]any)
		tags := make(map[string]bool, len(raw))
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags[s] = true
			}
		}
		for _, want := range f.Tags {
			if !tags[want] {
				return false
			}
		}
	}

	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
