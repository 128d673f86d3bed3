package embedding

import (
	"sync"
	"testing"
)

func TestCache_SetGet(t *testing.T) {
	cache := NewCache("test-model", 100)

	text := "can I afford a car loan"
	vector := []float32{0.1, 0.2, 0.3}

	cache.Set(text, vector)

	got, ok := cache.Get(text)
	if !ok {
		t.Fatal("expected cache hit")
	}

	if len(got) != len(vector) {
		t.Errorf("got len %d, want %d", len(got), len(vector))
	}

	for i := range vector {
		if got[i] != vector[i] {
			t.Errorf("got[%d] = %f, want %f", i, got[i], vector[i])
		}
	}
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache("test-model", 100)

	_, ok := cache.Get("not in cache")
	if ok {
		t.Error("expected cache miss")
	}
}

func TestCache_NormalizedKey(t *testing.T) {
	cache := NewCache("test-model", 100)

	cache.Set("Hello World", []float32{1})

	// Case and whitespace variants hit the same entry
	if _, ok := cache.Get("  hello   world "); !ok {
		t.Error("expected hit for normalized variant")
	}
}

func TestCache_Eviction(t *testing.T) {
	cache := NewCache("test-model", 3)

	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	cache.Set("c", []float32{3})

	// Add one more (should evict "a")
	cache.Set("d", []float32{4})

	if _, ok := cache.Get("a"); ok {
		t.Error("expected 'a' to be evicted")
	}

	for _, key := range []string{"b", "c", "d"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("expected %q to be present", key)
		}
	}
}

func TestCache_LRU(t *testing.T) {
	cache := NewCache("test-model", 3)

	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	cache.Set("c", []float32{3})

	// Access "a" to make it recently used
	cache.Get("a")

	// Add one more (should evict "b" as LRU)
	cache.Set("d", []float32{4})

	if _, ok := cache.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected 'a' to be present")
	}
}

func TestCache_CopyOnRead(t *testing.T) {
	cache := NewCache("test-model", 10)
	cache.Set("a", []float32{1, 2, 3})

	got, _ := cache.Get("a")
	got[0] = 99

	again, _ := cache.Get("a")
	if again[0] != 1 {
		t.Errorf("cache entry mutated through returned slice: got %f", again[0])
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache("test-model", 1000)

	var wg sync.WaitGroup
	texts := []string{"alpha", "beta", "gamma", "delta"}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				text := texts[(n+j)%len(texts)]
				cache.Set(text, []float32{float32(n), float32(j)})
				if vec, ok := cache.Get(text); ok && len(vec) != 2 {
					t.Errorf("corrupted vector length %d", len(vec))
				}
			}
		}(i)
	}
	wg.Wait()

	// Last-writer-wins: entries must remain well-formed
	for _, text := range texts {
		if vec, ok := cache.Get(text); ok && len(vec) != 2 {
			t.Errorf("corrupted entry for %q", text)
		}
	}
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache("test-model", 10)
	cache.Set("a", []float32{1})
	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Size() = %d after Clear, want 0", cache.Size())
	}

	stats := cache.Stats()
	if stats.Size != 0 || stats.MaxSize != 10 {
		t.Errorf("Stats() = %+v, want size 0 max 10", stats)
	}
}
