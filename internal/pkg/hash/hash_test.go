package hash

import (
	"testing"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{
			[]byte("hello"),
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			[]byte(""),
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := SHA256(tt.input)
			if got != tt.want {
				t.Errorf("SHA256(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSHA256String(t *testing.T) {
	got := SHA256String("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	if got != want {
		t.Errorf("SHA256String(hello) = %s, want %s", got, want)
	}
}

func TestSHA256Short(t *testing.T) {
	hash := SHA256([]byte("hello"))

	tests := []struct {
		n    int
		want string
	}{
		{8, hash[:8]},
		{16, hash[:16]},
		{32, hash[:32]},
		{64, hash},  // full hash
		{100, hash}, // exceeds length, returns full
	}

	for _, tt := range tests {
		got := SHA256Short([]byte("hello"), tt.n)
		if got != tt.want {
			t.Errorf("SHA256Short(hello, %d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello World", "hello world"},
		{"  spaced   out \t text\n", "spaced out text"},
		{"", ""},
		{"   ", ""},
		{"already normal", "already normal"},
	}

	for _, tt := range tests {
		got := NormalizeText(tt.input)
		if got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEmbeddingKey(t *testing.T) {
	// Same model and text should produce same key
	k1 := EmbeddingKey("all-minilm-l6-v2", "Can I afford a car loan?")
	k2 := EmbeddingKey("all-minilm-l6-v2", "Can I afford a car loan?")

	if k1 != k2 {
		t.Errorf("EmbeddingKey not deterministic: %s != %s", k1, k2)
	}

	// Whitespace and case variants share a key
	k3 := EmbeddingKey("all-minilm-l6-v2", "  can i AFFORD a car loan?  ")
	if k1 != k3 {
		t.Errorf("EmbeddingKey not normalization-stable: %s != %s", k1, k3)
	}

	// Different model must not collide
	k4 := EmbeddingKey("other-model", "Can I afford a car loan?")
	if k1 == k4 {
		t.Errorf("EmbeddingKey collision across models: %s", k1)
	}

	// Different text must not collide
	k5 := EmbeddingKey("all-minilm-l6-v2", "Can I afford a house?")
	if k1 == k5 {
		t.Errorf("EmbeddingKey collision across texts: %s", k1)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("Hello World")
	h2 := ContentHash("hello   world")

	if h1 != h2 {
		t.Errorf("ContentHash not normalization-stable: %s != %s", h1, h2)
	}
}

func BenchmarkSHA256(b *testing.B) {
	data := []byte("benchmark test data for hashing performance measurement")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SHA256(data)
	}
}

func BenchmarkEmbeddingKey(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EmbeddingKey("all-minilm-l6-v2", "How much should I invest in mutual funds each month?")
	}
}
