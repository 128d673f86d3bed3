package server

import (
	"net/http"
	"time"

	"github.com/nivesh/finassist/internal/agent"
	apperrors "github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/retrieval"
)

// handleRetrieve serves POST /v1/retrieve.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	resp, err := s.retrieval.RetrieveContext(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRecordExecution serves POST /v1/executions.
func (s *Server) handleRecordExecution(w http.ResponseWriter, r *http.Request) {
	var exec agent.Execution
	if err := decodeJSON(r, &exec); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if err := s.tracker.RecordExecution(r.Context(), exec); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"trace_id": exec.TraceID,
		"recorded": true,
	})
}

// handleRecordFeedback serves POST /v1/feedback.
func (s *Server) handleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var fb agent.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if err := s.tracker.RecordFeedback(r.Context(), fb); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"trace_id": fb.TraceID,
		"recorded": true,
	})
}

// handleGetPerformance serves GET /v1/agents/{type}/performance.
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	agentType := agent.Type(r.PathValue("type"))

	perf, err := s.tracker.GetPerformance(agentType)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// handleGetWeight serves GET /v1/agents/{type}/weight.
func (s *Server) handleGetWeight(w http.ResponseWriter, r *http.Request) {
	agentType := agent.Type(r.PathValue("type"))
	if !agentType.Valid() {
		apperrors.WriteError(w, apperrors.ConfigurationError("unknown agent type: "+string(agentType)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_type": agentType,
		"weight":     s.optimizer.GetWeight(agentType),
	})
}

// handleResetMetrics serves POST /v1/agents/{type}/reset.
func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	agentType := agent.Type(r.PathValue("type"))

	if err := s.tracker.ResetMetrics(r.Context(), agentType); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_type": agentType,
		"reset":      true,
	})
}

// handleListWeights serves GET /v1/weights.
func (s *Server) handleListWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"weights": s.optimizer.Weights(),
	})
}

// handleRecomputeWeights serves POST /v1/weights/recompute.
func (s *Server) handleRecomputeWeights(w http.ResponseWriter, r *http.Request) {
	if err := s.optimizer.OptimizeWeights(r.Context()); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"weights": s.optimizer.Weights(),
	})
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.embed.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"embedding_cache": map[string]any{
			"size":     stats.Size,
			"max_size": stats.MaxSize,
		},
	})
}
