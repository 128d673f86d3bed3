package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generator is the external embedding capability.
// Implementations turn text into fixed-dimension vectors; the model
// internals are outside this package.
type Generator interface {
	// Generate produces one vector per input text, in input order.
	Generate(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model identifier.
	Model() string

	// Dimension returns the vector dimension.
	Dimension() int
}

// RemoteGenerator calls an embedding service over HTTP.
type RemoteGenerator struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

// RemoteConfig configures the remote embedding generator.
type RemoteConfig struct {
	Endpoint  string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewRemoteGenerator creates a generator backed by an embedding service.
func NewRemoteGenerator(cfg RemoteConfig) (*RemoteGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Dimension < 1 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &RemoteGenerator{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		dim:      cfg.Dimension,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error,omitempty"`
}

// Generate sends one batched request for all texts.
func (g *RemoteGenerator) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: g.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, data)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", out.Error)
	}

	if len(out.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
			len(out.Vectors), len(texts))
	}
	for i, v := range out.Vectors {
		if len(v) != g.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), g.dim)
		}
	}

	return out.Vectors, nil
}

// Model returns the model identifier.
func (g *RemoteGenerator) Model() string {
	return g.model
}

// Dimension returns the vector dimension.
func (g *RemoteGenerator) Dimension() int {
	return g.dim
}
