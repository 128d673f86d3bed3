package agent

import (
	"context"
	"sync"
	"time"
)

// Storage persists executions, feedback and weights so tracker state
// survives restarts.
type Storage interface {
	// SaveExecution appends one execution record.
	SaveExecution(ctx context.Context, exec Execution) error

	// SaveFeedback appends one feedback record.
	SaveFeedback(ctx context.Context, fb Feedback) error

	// LoadExecutions returns executions recorded at or after since,
	// oldest first.
	LoadExecutions(ctx context.Context, since time.Time) ([]Execution, error)

	// LoadFeedback returns feedback recorded at or after since,
	// oldest first.
	LoadFeedback(ctx context.Context, since time.Time) ([]Feedback, error)

	// SaveWeights replaces the stored weight table.
	SaveWeights(ctx context.Context, weights map[Type]float64) error

	// LoadWeights returns the stored weight table, empty when none.
	LoadWeights(ctx context.Context) (map[Type]float64, error)

	// Reset removes all records for one agent type.
	Reset(ctx context.Context, agentType Type) error

	// Close releases resources.
	Close() error
}

// MemoryStorage keeps everything in process memory. Used in tests and
// single-node deployments that can afford to lose history on restart.
type MemoryStorage struct {
	mu         sync.RWMutex
	executions []Execution
	feedback   []Feedback
	weights    map[Type]float64
	traceAgent map[string]Type
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		weights:    make(map[Type]float64),
		traceAgent: make(map[string]Type),
	}
}

func (m *MemoryStorage) SaveExecution(ctx context.Context, exec Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, exec)
	m.traceAgent[exec.TraceID] = exec.AgentType
	return nil
}

func (m *MemoryStorage) SaveFeedback(ctx context.Context, fb Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *MemoryStorage) LoadExecutions(ctx context.Context, since time.Time) ([]Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Execution, 0, len(m.executions))
	for _, e := range m.executions {
		if e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStorage) LoadFeedback(ctx context.Context, since time.Time) ([]Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Feedback, 0, len(m.feedback))
	for _, f := range m.feedback {
		if f.Timestamp.Before(since) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *MemoryStorage) SaveWeights(ctx context.Context, weights map[Type]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.weights = make(map[Type]float64, len(weights))
	for t, w := range weights {
		m.weights[t] = w
	}
	return nil
}

func (m *MemoryStorage) LoadWeights(ctx context.Context) (map[Type]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[Type]float64, len(m.weights))
	for t, w := range m.weights {
		out[t] = w
	}
	return out, nil
}

func (m *MemoryStorage) Reset(ctx context.Context, agentType Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.executions[:0]
	for _, e := range m.executions {
		if e.AgentType == agentType {
			delete(m.traceAgent, e.TraceID)
			continue
		}
		kept = append(kept, e)
	}
	m.executions = kept

	keptFb := m.feedback[:0]
	for _, f := range m.feedback {
		if _, ok := m.traceAgent[f.TraceID]; ok {
			keptFb = append(keptFb, f)
		}
	}
	m.feedback = keptFb

	delete(m.weights, agentType)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
