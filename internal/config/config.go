// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"FINASSIST_HOST" yaml:"host"`
	Port int    `envconfig:"FINASSIST_PORT" yaml:"port"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Tracker configuration
	Tracker TrackerConfig `yaml:"tracker"`

	// Optimizer configuration
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host             string `envconfig:"QDRANT_HOST" yaml:"host"`
	Port             int    `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey           string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS           bool   `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	CollectionPrefix string `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
	TimeoutSeconds   int    `envconfig:"QDRANT_TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// EmbeddingConfig holds embedding capability settings.
type EmbeddingConfig struct {
	Model          string `envconfig:"FINASSIST_EMBED_MODEL" yaml:"model"`
	Dimension      int    `envconfig:"FINASSIST_EMBED_DIM" yaml:"dimension"`
	Endpoint       string `envconfig:"FINASSIST_EMBED_ENDPOINT" yaml:"endpoint"`
	BatchSize      int    `envconfig:"FINASSIST_EMBED_BATCH_SIZE" yaml:"batch_size"`
	TimeoutSeconds int    `envconfig:"FINASSIST_EMBED_TIMEOUT_SECONDS" yaml:"timeout_seconds"`
	CacheSize      int    `envconfig:"FINASSIST_EMBED_CACHE_SIZE" yaml:"cache_size"`
}

// CollectionConfig describes one vector collection the retriever queries.
type CollectionConfig struct {
	// Name is the collection name (without backend prefix).
	Name string `yaml:"name"`

	// FilterByUser restricts searches to the requesting user's documents.
	FilterByUser bool `yaml:"filter_by_user"`
}

// RetrievalConfig holds semantic retrieval settings.
type RetrievalConfig struct {
	// Collections are searched in order; this order also governs
	// tie-breaking when results are merged.
	Collections []CollectionConfig `yaml:"collections"`

	DefaultTopK     int     `envconfig:"FINASSIST_RETRIEVAL_TOP_K" yaml:"default_top_k"`
	PerCollectionK  int     `envconfig:"FINASSIST_RETRIEVAL_PER_COLLECTION_K" yaml:"per_collection_k"`
	ScoreThreshold  float64 `envconfig:"FINASSIST_SCORE_THRESHOLD" yaml:"score_threshold"`
	DiversityWeight float64 `envconfig:"FINASSIST_DIVERSITY_WEIGHT" yaml:"diversity_weight"`
	RecencyWeight   float64 `envconfig:"FINASSIST_RECENCY_WEIGHT" yaml:"recency_weight"`

	// RecencyHalfLifeHours controls how fast the recency factor decays.
	RecencyHalfLifeHours int `envconfig:"FINASSIST_RECENCY_HALF_LIFE_HOURS" yaml:"recency_half_life_hours"`
}

// TrackerConfig holds performance tracking settings.
type TrackerConfig struct {
	// TrendWindowDays is the rolling window for the improvement trend.
	TrendWindowDays int `envconfig:"FINASSIST_TREND_WINDOW_DAYS" yaml:"trend_window_days"`

	// TrendMinSamples is the minimum executions required for a trend.
	TrendMinSamples int `envconfig:"FINASSIST_TREND_MIN_SAMPLES" yaml:"trend_min_samples"`
}

// OptimizerConfig holds adaptive weight settings.
type OptimizerConfig struct {
	// UpdateThreshold is the minimum executions before a weight moves.
	UpdateThreshold int `envconfig:"FINASSIST_WEIGHT_UPDATE_THRESHOLD" yaml:"update_threshold"`

	// Decay is the exponential smoothing factor applied to the previous weight.
	Decay float64 `envconfig:"FINASSIST_WEIGHT_DECAY" yaml:"decay"`

	// MinWeight and MaxWeight clamp every stored weight.
	MinWeight float64 `envconfig:"FINASSIST_MIN_WEIGHT" yaml:"min_weight"`
	MaxWeight float64 `envconfig:"FINASSIST_MAX_WEIGHT" yaml:"max_weight"`

	// RecomputeInterval is how often the periodic recompute runs.
	RecomputeIntervalSeconds int `envconfig:"FINASSIST_RECOMPUTE_INTERVAL_SECONDS" yaml:"recompute_interval_seconds"`

	// FeedbackBatch triggers an early recompute after this many feedback signals.
	FeedbackBatch int `envconfig:"FINASSIST_FEEDBACK_BATCH" yaml:"feedback_batch"`
}

// StorageConfig holds agent state persistence settings.
type StorageConfig struct {
	Type     string `envconfig:"FINASSIST_STORAGE_TYPE" yaml:"type"`
	RedisURL string `envconfig:"FINASSIST_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"FINASSIST_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"FINASSIST_KAFKA_BROKERS" yaml:"kafka_brokers"`

	// AuditPath, when set, mirrors every published event to a JSONL file.
	AuditPath string `envconfig:"FINASSIST_BUS_AUDIT_PATH" yaml:"audit_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"FINASSIST_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"FINASSIST_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"FINASSIST_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Qdrant = QdrantConfig{
		Host:             "localhost",
		Port:             6334,
		CollectionPrefix: "nivesh_",
		TimeoutSeconds:   30,
	}

	cfg.Embedding = EmbeddingConfig{
		Model:          "all-minilm-l6-v2",
		Dimension:      384,
		Endpoint:       "http://localhost:8501/embed",
		BatchSize:      32,
		TimeoutSeconds: 15,
		CacheSize:      10000,
	}

	cfg.Retrieval = RetrievalConfig{
		Collections: []CollectionConfig{
			{Name: "user_context", FilterByUser: true},
			{Name: "knowledge_base"},
			{Name: "conversation_history"},
		},
		DefaultTopK:          10,
		PerCollectionK:       20,
		ScoreThreshold:       0.3,
		DiversityWeight:      0.15,
		RecencyWeight:        0.15,
		RecencyHalfLifeHours: 168, // one week
	}

	cfg.Tracker = TrackerConfig{
		TrendWindowDays: 30,
		TrendMinSamples: 10,
	}

	cfg.Optimizer = OptimizerConfig{
		UpdateThreshold:          10,
		Decay:                    0.95,
		MinWeight:                0.5,
		MaxWeight:                2.0,
		RecomputeIntervalSeconds: 300,
		FeedbackBatch:            5,
	}

	cfg.Storage = StorageConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Embedding validation
	if c.Embedding.Dimension < 1 {
		errs = append(errs, "embedding dimension must be positive")
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, "embedding batch_size must be positive")
	}
	if c.Embedding.Model == "" {
		errs = append(errs, "embedding model must be set")
	}

	// Retrieval validation
	if len(c.Retrieval.Collections) == 0 {
		errs = append(errs, "at least one retrieval collection must be configured")
	}
	seen := map[string]bool{}
	for _, col := range c.Retrieval.Collections {
		if col.Name == "" {
			errs = append(errs, "collection name cannot be empty")
			continue
		}
		if seen[col.Name] {
			errs = append(errs, fmt.Sprintf("duplicate collection: %s", col.Name))
		}
		seen[col.Name] = true
	}
	if c.Retrieval.DefaultTopK < 1 {
		errs = append(errs, "default_top_k must be positive")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		errs = append(errs, "score_threshold must be between 0 and 1")
	}
	if c.Retrieval.DiversityWeight < 0 || c.Retrieval.RecencyWeight < 0 ||
		c.Retrieval.DiversityWeight+c.Retrieval.RecencyWeight > 1 {
		errs = append(errs, "diversity_weight and recency_weight must be non-negative and sum to at most 1")
	}
	if c.Retrieval.RecencyHalfLifeHours < 1 {
		errs = append(errs, "recency_half_life_hours must be positive")
	}

	// Tracker validation
	if c.Tracker.TrendWindowDays < 1 {
		errs = append(errs, "trend_window_days must be positive")
	}
	if c.Tracker.TrendMinSamples < 2 {
		errs = append(errs, "trend_min_samples must be at least 2")
	}

	// Optimizer validation
	if c.Optimizer.UpdateThreshold < 1 {
		errs = append(errs, "update_threshold must be positive")
	}
	if c.Optimizer.Decay < 0 || c.Optimizer.Decay >= 1 {
		errs = append(errs, "decay must be in [0, 1)")
	}
	if c.Optimizer.MinWeight <= 0 || c.Optimizer.MaxWeight <= c.Optimizer.MinWeight {
		errs = append(errs, "weight bounds must satisfy 0 < min_weight < max_weight")
	}
	if c.Optimizer.RecomputeIntervalSeconds < 1 {
		errs = append(errs, "recompute_interval_seconds must be positive")
	}

	// Storage validation
	validStorageTypes := map[string]bool{"memory": true, "redis": true}
	if !validStorageTypes[c.Storage.Type] {
		errs = append(errs, fmt.Sprintf("invalid storage type: %s (must be memory or redis)", c.Storage.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QdrantTimeout returns the Qdrant operation timeout as a duration.
func (c *Config) QdrantTimeout() time.Duration {
	return time.Duration(c.Qdrant.TimeoutSeconds) * time.Second
}

// EmbeddingTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

// RecomputeInterval returns the optimizer recompute interval as a duration.
func (c *Config) RecomputeInterval() time.Duration {
	return time.Duration(c.Optimizer.RecomputeIntervalSeconds) * time.Second
}
