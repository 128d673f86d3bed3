package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second
)

// QdrantConfig holds configuration for the Qdrant gateway.
type QdrantConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// CollectionPrefix is prepended to all collection names.
	CollectionPrefix string

	// Timeout for operations.
	Timeout time.Duration
}

// DefaultQdrantConfig returns sensible defaults for local development.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:             DefaultHost,
		Port:             DefaultPort,
		CollectionPrefix: "nivesh_",
		Timeout:          DefaultTimeout,
	}
}

// QdrantGateway implements Gateway over a Qdrant server.
type QdrantGateway struct {
	client *qdrant.Client
	config QdrantConfig
	mu     sync.RWMutex
	closed bool
}

// NewQdrantGateway creates a Qdrant-backed gateway.
func NewQdrantGateway(cfg QdrantConfig) (*QdrantGateway, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantGateway{
		client: client,
		config: cfg,
	}, nil
}

// Search performs a dense similarity search in one collection.
func (g *QdrantGateway) Search(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, fmt.Errorf("gateway is closed")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if topK <= 0 {
		topK = 10
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	queryPoints := &qdrant.QueryPoints{
		CollectionName: g.collectionName(collection),
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if qf := buildFilter(filter); qf != nil {
		queryPoints.Filter = qf
	}

	points, err := g.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("search in %s failed: %w", collection, err)
	}

	return scoredPointsToHits(points), nil
}

// HealthCheck verifies the Qdrant server is reachable.
func (g *QdrantGateway) HealthCheck(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return fmt.Errorf("gateway is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	reply, err := g.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if reply.GetTitle() == "" {
		return fmt.Errorf("unexpected health check response")
	}

	return nil
}

// Close closes the gateway connection.
func (g *QdrantGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}

	g.closed = true
	return g.client.Close()
}

// collectionName returns the full collection name with prefix.
func (g *QdrantGateway) collectionName(name string) string {
	return g.config.CollectionPrefix + name
}

// buildFilter builds a Qdrant filter from a Filter.
func buildFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	var conditions []*qdrant.Condition

	if f.UserID != "" {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "user_id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: f.UserID,
						},
					},
				},
			},
		})
	}

	if len(f.Categories) > 0 {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "category",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{
								Strings: f.Categories,
							},
						},
					},
				},
			},
		})
	}

	for _, tag := range f.Tags {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "tags",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: tag,
						},
					},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

// scoredPointsToHits converts Qdrant scored points to Hits.
func scoredPointsToHits(points []*qdrant.ScoredPoint) []Hit {
	hits := make([]Hit, 0, len(points))

	for _, p := range points {
		var id string
		switch v := p.Id.PointIdOptions.(type) {
		case *qdrant.PointId_Uuid:
			id = v.Uuid
		case *qdrant.PointId_Num:
			id = fmt.Sprintf("%d", v.Num)
		}

		hits = append(hits, Hit{
			ID:      id,
			Score:   float64(p.Score),
			Payload: extractPayload(p.Payload),
		})
	}

	return hits
}

// extractPayload converts a Qdrant payload map to plain Go values.
func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, v := range payload {
		out[key] = payloadValue(v)
	}
	return out
}

func payloadValue(v *qdrant.Value) any {
	switch k := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(k.ListValue.Values))
		for _, item := range k.ListValue.Values {
			items = append(items, payloadValue(item))
		}
		return items
	default:
		return nil
	}
}
