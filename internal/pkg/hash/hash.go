// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// NormalizeText canonicalizes text for content-addressable keys:
// trimmed and lowercased, with runs of whitespace collapsed to one space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EmbeddingKey generates the cache key for an embedding request.
// The key is derived from the model identifier and the normalized text,
// so the same text always maps to the same entry for a given model.
func EmbeddingKey(model, text string) string {
	return SHA256String(model + "\n" + NormalizeText(text))
}

// ContentHash returns the content hash recorded on an Embedding.
func ContentHash(text string) string {
	return SHA256String(NormalizeText(text))
}
