package embedding

import (
	"sync"

	"github.com/nivesh/finassist/internal/pkg/hash"
)

// Cache caches embedding vectors keyed by (model, normalized text).
type Cache struct {
	mu      sync.RWMutex
	model   string
	cache   map[string][]float32
	maxSize int
	order   []string // LRU order
}

// NewCache creates a new embedding cache for a single model.
func NewCache(model string, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &Cache{
		model:   model,
		cache:   make(map[string][]float32),
		maxSize: maxSize,
		order:   make([]string, 0, maxSize),
	}
}

// Get retrieves a cached vector for the given text.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := hash.EmbeddingKey(c.model, text)

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Move to end of LRU (most recently used)
	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	// Return a copy to prevent external mutation
	vecCopy := make([]float32, len(vec))
	copy(vecCopy, vec)
	return vecCopy, true
}

// Set stores a vector for the given text.
// Concurrent writers for the same key are last-writer-wins.
func (c *Cache) Set(text string, vector []float32) {
	key := hash.EmbeddingKey(c.model, text)

	// Copy vector to avoid external mutations
	vecCopy := make([]float32, len(vector))
	copy(vecCopy, vector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		c.cache[key] = vecCopy
		c.moveToEnd(key)
		return
	}

	// Evict if at capacity
	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = vecCopy
	c.order = append(c.order, key)
}

// moveToEnd moves a key to the end of the LRU order (must hold lock).
func (c *Cache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string][]float32)
	c.order = make([]string, 0, c.maxSize)
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Size:    len(c.cache),
		MaxSize: c.maxSize,
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
}
