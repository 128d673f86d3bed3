package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nivesh/finassist/internal/agent"
	"github.com/nivesh/finassist/internal/bus"
	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/embedding"
	"github.com/nivesh/finassist/internal/pkg/logger"
	"github.com/nivesh/finassist/internal/pkg/middleware"
	"github.com/nivesh/finassist/internal/retrieval"
	"github.com/nivesh/finassist/internal/vectorstore"
)

// Server is the HTTP server that wires all services together.
type Server struct {
	cfg        Config
	appCfg     *config.Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus        bus.Bus
	store      vectorstore.Gateway
	agentStore agent.Storage
	embed      *embedding.Service
	retrieval  *retrieval.Service
	tracker    *agent.Tracker
	optimizer  *agent.Optimizer

	cancelRun context.CancelFunc

	mu      sync.Mutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a server and all its dependencies from configuration.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:    cfg,
		appCfg: appCfg,
		log:    log,
	}

	events, err := bus.New(appCfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	s.bus = events

	gateway, err := vectorstore.NewQdrantGateway(vectorstore.QdrantConfig{
		Host:             appCfg.Qdrant.Host,
		Port:             appCfg.Qdrant.Port,
		APIKey:           appCfg.Qdrant.APIKey,
		UseTLS:           appCfg.Qdrant.UseTLS,
		CollectionPrefix: appCfg.Qdrant.CollectionPrefix,
		Timeout:          appCfg.QdrantTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store gateway: %w", err)
	}
	s.store = gateway

	generator, err := embedding.NewRemoteGenerator(embedding.RemoteConfig{
		Endpoint:  appCfg.Embedding.Endpoint,
		Model:     appCfg.Embedding.Model,
		Dimension: appCfg.Embedding.Dimension,
		Timeout:   appCfg.EmbeddingTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding generator: %w", err)
	}
	s.embed = embedding.NewService(generator, appCfg.Embedding.CacheSize, log)

	s.agentStore, err = newAgentStorage(appCfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating agent storage: %w", err)
	}

	s.retrieval = retrieval.NewService(s.embed, s.store, s.bus, log, appCfg.Retrieval)
	s.tracker = agent.NewTracker(s.agentStore, s.bus, log, appCfg.Tracker)

	s.optimizer, err = agent.NewOptimizer(s.tracker, s.agentStore, s.bus, log, appCfg.Optimizer)
	if err != nil {
		return nil, fmt.Errorf("creating optimizer: %w", err)
	}

	return s, nil
}

// Deps bundles pre-built services for tests and embedded use.
type Deps struct {
	Bus        bus.Bus
	Store      vectorstore.Gateway
	AgentStore agent.Storage
	Embed      *embedding.Service
	Retrieval  *retrieval.Service
	Tracker    *agent.Tracker
	Optimizer  *agent.Optimizer
}

// NewWithDeps creates a server around already-constructed services.
func NewWithDeps(cfg Config, appCfg *config.Config, log *logger.Logger, deps Deps) *Server {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	return &Server{
		cfg:        cfg,
		appCfg:     appCfg,
		log:        log,
		bus:        deps.Bus,
		store:      deps.Store,
		agentStore: deps.AgentStore,
		embed:      deps.Embed,
		retrieval:  deps.Retrieval,
		tracker:    deps.Tracker,
		optimizer:  deps.Optimizer,
	}
}

func newAgentStorage(cfg config.StorageConfig) (agent.Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return agent.NewMemoryStorage(), nil
	case "redis":
		return agent.NewRedisStorage(cfg.RedisURL, 0)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Start restores persisted state, launches the optimizer loop and serves
// HTTP until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel

	if err := s.tracker.Restore(ctx); err != nil {
		s.log.Warn("tracker restore failed, starting empty", "error", err)
	}
	if err := s.optimizer.Restore(ctx); err != nil {
		s.log.Warn("weight restore failed, starting with defaults", "error", err)
	}
	go s.optimizer.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and closes all services.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	if s.cancelRun != nil {
		s.cancelRun()
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.store != nil {
		s.store.Close()
	}
	if s.agentStore != nil {
		s.agentStore.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// Handler returns the fully-wired HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/retrieve", s.handleRetrieve)
	mux.HandleFunc("POST /v1/executions", s.handleRecordExecution)
	mux.HandleFunc("POST /v1/feedback", s.handleRecordFeedback)
	mux.HandleFunc("GET /v1/agents/{type}/performance", s.handleGetPerformance)
	mux.HandleFunc("GET /v1/agents/{type}/weight", s.handleGetWeight)
	mux.HandleFunc("POST /v1/agents/{type}/reset", s.handleResetMetrics)
	mux.HandleFunc("GET /v1/weights", s.handleListWeights)
	mux.HandleFunc("POST /v1/weights/recompute", s.handleRecomputeWeights)

	var handler http.Handler = mux
	if s.appCfg != nil && s.appCfg.Security.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.appCfg.Security.RateLimit),
			Burst:             s.appCfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = limiter.Middleware(handler)
	}

	return loggingMiddleware(handler, s.log)
}
