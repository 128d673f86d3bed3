package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nivesh/finassist/internal/bus"
	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/pkg/logger"
	"github.com/nivesh/finassist/internal/pkg/security"
)

// sample is one confidence observation used for trend computation.
type sample struct {
	ts         time.Time
	confidence float64
}

type agentState struct {
	metrics Metrics
	samples []sample
}

// Tracker accumulates execution outcomes and user feedback per agent
// type. Counters only grow, except through ResetMetrics.
type Tracker struct {
	mu     sync.RWMutex
	agents map[Type]*agentState
	traces map[string]Type

	store Storage
	bus   bus.Bus
	log   *logger.Logger
	cfg   config.TrackerConfig

	// onFeedback is invoked after each recorded feedback, outside the
	// tracker lock. The optimizer registers itself here.
	onFeedback func()

	weightFn func(Type) float64
}

// NewTracker creates a tracker backed by store. events may be nil.
func NewTracker(store Storage, events bus.Bus, log *logger.Logger, cfg config.TrackerConfig) *Tracker {
	t := &Tracker{
		agents: make(map[Type]*agentState),
		traces: make(map[string]Type),
		store:  store,
		bus:    events,
		log:    log,
		cfg:    cfg,
	}
	for _, at := range AllTypes() {
		t.agents[at] = &agentState{metrics: Metrics{AgentType: at}}
	}
	return t
}

// SetFeedbackListener registers fn to run after every recorded feedback.
func (t *Tracker) SetFeedbackListener(fn func()) {
	t.onFeedback = fn
}

// SetWeightSource registers fn as the live weight lookup used in
// performance reports.
func (t *Tracker) SetWeightSource(fn func(Type) float64) {
	t.weightFn = fn
}

// Restore rebuilds in-memory state from storage. Called once at startup
// before the tracker serves requests.
func (t *Tracker) Restore(ctx context.Context) error {
	since := time.Now().AddDate(0, 0, -t.cfg.TrendWindowDays)

	executions, err := t.store.LoadExecutions(ctx, since)
	if err != nil {
		return err
	}
	feedback, err := t.store.LoadFeedback(ctx, since)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, exec := range executions {
		t.applyExecution(exec)
	}
	for _, fb := range feedback {
		agentType, ok := t.traces[fb.TraceID]
		if !ok {
			continue
		}
		t.applyFeedback(agentType, fb)
	}

	t.log.Info("tracker state restored",
		"executions", len(executions),
		"feedback", len(feedback),
	)
	return nil
}

// RecordExecution records one completed agent run. The execution is
// persisted first; counters change only after the write succeeds, so a
// storage failure leaves the live metrics untouched.
func (t *Tracker) RecordExecution(ctx context.Context, exec Execution) error {
	if exec.TraceID == "" {
		return errors.InvalidInputError("trace_id is required")
	}
	if !exec.AgentType.Valid() {
		return errors.ConfigurationError(fmt.Sprintf("unknown agent type: %s", exec.AgentType))
	}
	if exec.Confidence < 0 || exec.Confidence > 1 {
		return errors.InvalidInputError("confidence must be within [0, 1]")
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now()
	}

	t.mu.RLock()
	_, exists := t.traces[exec.TraceID]
	t.mu.RUnlock()
	if exists {
		return errors.InvalidInputError(fmt.Sprintf("trace %s already recorded", exec.TraceID))
	}

	if err := t.store.SaveExecution(ctx, exec); err != nil {
		return err
	}

	t.mu.Lock()
	if _, exists := t.traces[exec.TraceID]; exists {
		// Lost a race with a concurrent call for the same trace.
		t.mu.Unlock()
		return errors.InvalidInputError(fmt.Sprintf("trace %s already recorded", exec.TraceID))
	}
	t.applyExecution(exec)
	t.mu.Unlock()

	t.publish(ctx, bus.TopicExecutionRecorded, map[string]any{
		"trace_id":   exec.TraceID,
		"agent_type": exec.AgentType,
		"user_id":    exec.UserID,
		"success":    exec.Success,
		"confidence": exec.Confidence,
	})
	return nil
}

// RecordFeedback records a user rating for a prior execution. Feedback
// for an unknown trace is rejected and leaves all counters untouched.
// The feedback is persisted before counters move, so a storage failure
// is reported without the live metrics having absorbed the signal.
func (t *Tracker) RecordFeedback(ctx context.Context, fb Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return errors.InvalidInputError("rating must be within [1, 5]")
	}
	if len(fb.Comment) > security.MaxCommentLength {
		return errors.InvalidInputError(
			fmt.Sprintf("comment exceeds %d characters", security.MaxCommentLength))
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}

	t.mu.RLock()
	_, ok := t.traces[fb.TraceID]
	t.mu.RUnlock()
	if !ok {
		return errors.UnknownTraceError(fb.TraceID)
	}

	if err := t.store.SaveFeedback(ctx, fb); err != nil {
		return err
	}

	t.mu.Lock()
	// Re-resolve: the trace may have been reset between the check and
	// the write.
	agentType, ok := t.traces[fb.TraceID]
	if !ok {
		t.mu.Unlock()
		return errors.UnknownTraceError(fb.TraceID)
	}
	t.applyFeedback(agentType, fb)
	t.mu.Unlock()

	t.publish(ctx, bus.TopicFeedbackRecorded, map[string]any{
		"trace_id":   fb.TraceID,
		"agent_type": agentType,
		"user_id":    fb.UserID,
		"rating":     fb.Rating,
		"sentiment":  fb.Sentiment(),
	})

	if t.onFeedback != nil {
		t.onFeedback()
	}
	return nil
}

// GetPerformance returns the derived report for one agent type.
func (t *Tracker) GetPerformance(agentType Type) (Performance, error) {
	if !agentType.Valid() {
		return Performance{}, errors.ConfigurationError(fmt.Sprintf("unknown agent type: %s", agentType))
	}

	t.mu.RLock()
	state := t.agents[agentType]
	m := state.metrics
	trend := t.trendLocked(state)
	t.mu.RUnlock()

	perf := Performance{
		AgentType:            agentType,
		TotalExecutions:      m.TotalExecutions,
		SuccessRate:          m.SuccessRate(),
		AvgConfidence:        m.AvgConfidence(),
		AvgDurationMs:        m.AvgDurationMs(),
		PositiveFeedbackRate: m.PositiveFeedbackRate(),
		FeedbackCount:        m.PositiveFeedback + m.NegativeFeedback + m.NeutralFeedback,
		Trend:                trend,
		CurrentWeight:        1.0,
		LastUpdated:          m.LastUpdated,
	}
	if t.weightFn != nil {
		perf.CurrentWeight = t.weightFn(agentType)
	}
	return perf, nil
}

// Snapshot returns a consistent copy of every agent's metrics.
func (t *Tracker) Snapshot() map[Type]Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[Type]Metrics, len(t.agents))
	for at, state := range t.agents {
		out[at] = state.metrics
	}
	return out
}

// ResetMetrics clears one agent's counters and history. This is the only
// operation that decreases counts.
func (t *Tracker) ResetMetrics(ctx context.Context, agentType Type) error {
	if !agentType.Valid() {
		return errors.ConfigurationError(fmt.Sprintf("unknown agent type: %s", agentType))
	}

	t.mu.Lock()
	for traceID, at := range t.traces {
		if at == agentType {
			delete(t.traces, traceID)
		}
	}
	t.agents[agentType] = &agentState{metrics: Metrics{AgentType: agentType}}
	t.mu.Unlock()

	if err := t.store.Reset(ctx, agentType); err != nil {
		return err
	}

	t.publish(ctx, bus.TopicMetricsReset, map[string]any{
		"agent_type": agentType,
	})
	return nil
}

// applyExecution updates counters; caller holds the write lock.
func (t *Tracker) applyExecution(exec Execution) {
	state := t.agents[exec.AgentType]
	if state == nil {
		state = &agentState{metrics: Metrics{AgentType: exec.AgentType}}
		t.agents[exec.AgentType] = state
	}

	state.metrics.TotalExecutions++
	if exec.Success {
		state.metrics.SuccessCount++
	}
	state.metrics.ConfidenceSum += exec.Confidence
	state.metrics.DurationSumMs += exec.DurationMs
	state.metrics.LastUpdated = time.Now()
	state.samples = append(state.samples, sample{ts: exec.Timestamp, confidence: exec.Confidence})
	t.pruneSamplesLocked(state)

	t.traces[exec.TraceID] = exec.AgentType
}

// applyFeedback updates sentiment counters; caller holds the write lock.
func (t *Tracker) applyFeedback(agentType Type, fb Feedback) {
	state := t.agents[agentType]
	if state == nil {
		return
	}
	switch fb.Sentiment() {
	case SentimentPositive:
		state.metrics.PositiveFeedback++
	case SentimentNegative:
		state.metrics.NegativeFeedback++
	default:
		state.metrics.NeutralFeedback++
	}
	state.metrics.LastUpdated = time.Now()
}

func (t *Tracker) pruneSamplesLocked(state *agentState) {
	cutoff := time.Now().AddDate(0, 0, -t.cfg.TrendWindowDays)
	i := 0
	for ; i < len(state.samples); i++ {
		if !state.samples[i].ts.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		state.samples = append(state.samples[:0], state.samples[i:]...)
	}
}

// trendLocked computes the confidence improvement over the trend window:
// the mean confidence of the newer half versus the older half, as a
// percentage change. Fewer than the minimum samples yields 0.
func (t *Tracker) trendLocked(state *agentState) float64 {
	samples := state.samples
	if len(samples) < t.cfg.TrendMinSamples {
		return 0
	}

	ordered := make([]sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ts.Before(ordered[j].ts)
	})

	mid := len(ordered) / 2
	firstAvg := meanConfidence(ordered[:mid])
	secondAvg := meanConfidence(ordered[mid:])
	if firstAvg == 0 {
		return 0
	}
	return (secondAvg - firstAvg) / firstAvg * 100
}

func meanConfidence(samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.confidence
	}
	return sum / float64(len(samples))
}

func (t *Tracker) publish(ctx context.Context, topic string, payload map[string]any) {
	if t.bus == nil {
		return
	}
	event := bus.Event{
		ID:        fmt.Sprintf("%s-%d", topic, time.Now().UnixNano()),
		Type:      topic,
		Source:    "tracker",
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
	if err := t.bus.Publish(ctx, topic, event); err != nil {
		t.log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
