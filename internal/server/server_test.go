package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nivesh/finassist/internal/agent"
	"github.com/nivesh/finassist/internal/bus"
	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/embedding"
	"github.com/nivesh/finassist/internal/pkg/logger"
	"github.com/nivesh/finassist/internal/retrieval"
	"github.com/nivesh/finassist/internal/vectorstore"
)

type stubGenerator struct{}

func (g *stubGenerator) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (g *stubGenerator) Model() string  { return "test-model" }
func (g *stubGenerator) Dimension() int { return 4 }

func newTestServer(t *testing.T) (*Server, *vectorstore.MemoryGateway) {
	t.Helper()

	log := logger.Default()
	appCfg := &config.Config{
		Retrieval: config.RetrievalConfig{
			Collections: []config.CollectionConfig{
				{Name: "user_context", FilterByUser: true},
				{Name: "knowledge_base"},
			},
			DefaultTopK:          10,
			PerCollectionK:       20,
			ScoreThreshold:       0.3,
			DiversityWeight:      0.15,
			RecencyWeight:        0.15,
			RecencyHalfLifeHours: 168,
		},
		Tracker: config.TrackerConfig{
			TrendWindowDays: 30,
			TrendMinSamples: 10,
		},
		Optimizer: config.OptimizerConfig{
			UpdateThreshold:          10,
			Decay:                    0.95,
			MinWeight:                0.5,
			MaxWeight:                2.0,
			RecomputeIntervalSeconds: 300,
			FeedbackBatch:            5,
		},
	}

	gateway := vectorstore.NewMemoryGateway()
	agentStore := agent.NewMemoryStorage()
	embedSvc := embedding.NewService(&stubGenerator{}, 16, log)
	tracker := agent.NewTracker(agentStore, nil, log, appCfg.Tracker)
	optimizer, err := agent.NewOptimizer(tracker, agentStore, nil, log, appCfg.Optimizer)
	if err != nil {
		t.Fatalf("NewOptimizer failed: %v", err)
	}
	retrievalSvc := retrieval.NewService(embedSvc, gateway, nil, log, appCfg.Retrieval)

	s := NewWithDeps(Config{Version: "test"}, appCfg, log, Deps{
		Bus:        bus.NewMemoryBus(),
		Store:      gateway,
		AgentStore: agentStore,
		Embed:      embedSvc,
		Retrieval:  retrievalSvc,
		Tracker:    tracker,
		Optimizer:  optimizer,
	})
	return s, gateway
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s.Handler(), "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version field = %v, want test", resp["version"])
	}
}

func TestRetrieveEndpoint(t *testing.T) {
	s, gateway := newTestServer(t)

	gateway.Add("knowledge_base", vectorstore.Doc{
		ID:      "kb-1",
		Vector:  []float32{1, 0, 0, 0},
		Payload: map[string]any{"content": "diversify your portfolio"},
	})
	gateway.Add("user_context", vectorstore.Doc{
		ID:      "uc-1",
		Vector:  []float32{1, 0, 0, 0},
		Payload: map[string]any{"content": "monthly income 5000", "user_id": "u1"},
	})

	w := doJSON(t, s.Handler(), "POST", "/v1/retrieve", map[string]any{
		"query":   "how should I invest",
		"user_id": "u1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp retrieval.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("got %d results, want 2", len(resp.Results))
	}
}

func TestRetrieveEndpointBadBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/v1/retrieve", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRetrieveEndpointEmptyQuery(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s.Handler(), "POST", "/v1/retrieve", map[string]any{"query": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExecutionAndFeedbackFlow(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, "POST", "/v1/executions", map[string]any{
		"trace_id":   "flow-1",
		"agent_type": "investment_advisor",
		"success":    true,
		"confidence": 0.9,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("execution status = %d, want 201: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "POST", "/v1/feedback", map[string]any{
		"trace_id": "flow-1",
		"rating":   5,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("feedback status = %d, want 202: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "GET", "/v1/agents/investment_advisor/performance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("performance status = %d, want 200", w.Code)
	}

	var perf agent.Performance
	if err := json.Unmarshal(w.Body.Bytes(), &perf); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if perf.TotalExecutions != 1 {
		t.Errorf("TotalExecutions = %d, want 1", perf.TotalExecutions)
	}
	if perf.FeedbackCount != 1 {
		t.Errorf("FeedbackCount = %d, want 1", perf.FeedbackCount)
	}
}

func TestFeedbackUnknownTrace(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s.Handler(), "POST", "/v1/feedback", map[string]any{
		"trace_id": "ghost",
		"rating":   4,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", w.Code, w.Body.String())
	}
}

func TestExecutionValidationErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, "POST", "/v1/executions", map[string]any{
		"trace_id":   "bad-1",
		"agent_type": "astrologer",
		"confidence": 0.5,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown agent type status = %d, want 400", w.Code)
	}

	w = doJSON(t, h, "POST", "/v1/executions", map[string]any{
		"trace_id":   "bad-2",
		"agent_type": "general",
		"confidence": 2.5,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad confidence status = %d, want 400", w.Code)
	}
}

func TestWeightEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, "GET", "/v1/agents/monitoring/weight", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("weight status = %d, want 200", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["weight"] != 1.0 {
		t.Errorf("fresh weight = %v, want 1", resp["weight"])
	}

	w = doJSON(t, h, "GET", "/v1/agents/astrologer/weight", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type weight status = %d, want 400", w.Code)
	}

	w = doJSON(t, h, "GET", "/v1/weights", nil)
	if w.Code != http.StatusOK {
		t.Errorf("weights status = %d, want 200", w.Code)
	}
}

func TestRecomputeEndpointMovesWeights(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	for i := 0; i < 20; i++ {
		w := doJSON(t, h, "POST", "/v1/executions", map[string]any{
			"trace_id":   fmt.Sprintf("rc-%d", i),
			"agent_type": "investment_advisor",
			"success":    true,
			"confidence": 0.95,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("execution status = %d", w.Code)
		}
	}
	for i := 0; i < 10; i++ {
		w := doJSON(t, h, "POST", "/v1/feedback", map[string]any{
			"trace_id": fmt.Sprintf("rc-%d", i),
			"rating":   5,
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("feedback status = %d", w.Code)
		}
	}

	w := doJSON(t, h, "POST", "/v1/weights/recompute", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recompute status = %d, want 200: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "GET", "/v1/agents/investment_advisor/weight", nil)
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	weight, ok := resp["weight"].(float64)
	if !ok || weight <= 1.0 {
		t.Errorf("weight after recompute = %v, want > 1.0", resp["weight"])
	}
}

func TestResetEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, "POST", "/v1/executions", map[string]any{
		"trace_id":   "reset-1",
		"agent_type": "general",
		"success":    true,
		"confidence": 0.8,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("execution status = %d", w.Code)
	}

	w = doJSON(t, h, "POST", "/v1/agents/general/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", w.Code)
	}

	w = doJSON(t, h, "GET", "/v1/agents/general/performance", nil)
	var perf agent.Performance
	if err := json.Unmarshal(w.Body.Bytes(), &perf); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if perf.TotalExecutions != 0 {
		t.Errorf("TotalExecutions after reset = %d, want 0", perf.TotalExecutions)
	}
}

func TestRateLimitApplied(t *testing.T) {
	s, _ := newTestServer(t)
	s.appCfg.Security.RateLimit = 1
	h := s.Handler()

	var limited bool
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected a rate limited response")
	}
}
