package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nivesh/finassist/internal/bus"
	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/pkg/logger"
)

// Optimizer maintains the live per-agent selection weights. Weights are
// published as an immutable snapshot behind an atomic pointer, so
// GetWeight readers never block on a recompute pass.
type Optimizer struct {
	tracker *Tracker
	store   Storage
	bus     bus.Bus
	log     *logger.Logger
	cfg     config.OptimizerConfig

	// weights holds a map[Type]float64 snapshot. Swapped wholesale,
	// never mutated in place.
	weights atomic.Value

	// recomputeMu serializes OptimizeWeights passes.
	recomputeMu sync.Mutex

	pending atomic.Int32
	trigger chan struct{}
}

// NewOptimizer creates an optimizer reading metrics from tracker and
// persisting weights to store. events may be nil.
func NewOptimizer(tracker *Tracker, store Storage, events bus.Bus, log *logger.Logger, cfg config.OptimizerConfig) (*Optimizer, error) {
	if cfg.Decay < 0 || cfg.Decay >= 1 {
		return nil, errors.ConfigurationError(fmt.Sprintf("decay must be within [0, 1), got %v", cfg.Decay))
	}
	if cfg.MinWeight <= 0 || cfg.MinWeight >= cfg.MaxWeight {
		return nil, errors.ConfigurationError(
			fmt.Sprintf("weight bounds must satisfy 0 < min < max, got [%v, %v]", cfg.MinWeight, cfg.MaxWeight))
	}

	o := &Optimizer{
		tracker: tracker,
		store:   store,
		bus:     events,
		log:     log,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}

	defaults := make(map[Type]float64, len(AllTypes()))
	for _, at := range AllTypes() {
		defaults[at] = 1.0
	}
	o.weights.Store(defaults)

	tracker.SetFeedbackListener(o.NotifyFeedback)
	tracker.SetWeightSource(o.GetWeight)
	return o, nil
}

// Restore loads persisted weights, keeping the 1.0 default for agent
// types with no stored value.
func (o *Optimizer) Restore(ctx context.Context) error {
	stored, err := o.store.LoadWeights(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	next := o.copyWeights()
	for at, w := range stored {
		next[at] = clampWeight(w, o.cfg.MinWeight, o.cfg.MaxWeight)
	}
	o.weights.Store(next)

	o.log.Info("weights restored", "count", len(stored))
	return nil
}

// GetWeight returns the current weight for agentType, 1.0 when none is
// recorded. Safe to call concurrently with OptimizeWeights.
func (o *Optimizer) GetWeight(agentType Type) float64 {
	snapshot := o.weights.Load().(map[Type]float64)
	if w, ok := snapshot[agentType]; ok {
		return w
	}
	return 1.0
}

// Weights returns a copy of the current weight table.
func (o *Optimizer) Weights() map[Type]float64 {
	return o.copyWeights()
}

// OptimizeWeights recomputes every agent's weight from its current
// metrics. Agents below the execution threshold keep their weight; the
// rest move toward a target derived from success rate, positive feedback
// rate and average confidence, smoothed by the decay factor and clamped
// to the configured bounds.
func (o *Optimizer) OptimizeWeights(ctx context.Context) error {
	o.recomputeMu.Lock()
	defer o.recomputeMu.Unlock()

	metrics := o.tracker.Snapshot()
	current := o.weights.Load().(map[Type]float64)

	next := make(map[Type]float64, len(current))
	for at, w := range current {
		next[at] = w
	}

	changed := make(map[Type]float64)
	for at, m := range metrics {
		if m.TotalExecutions < o.cfg.UpdateThreshold {
			continue
		}

		prev, ok := next[at]
		if !ok {
			prev = 1.0
		}

		// Performance score in [0, 1], 0.5 being neutral. The score
		// scales onto the weight range so a neutral agent holds 1.0
		// and a perfect agent converges toward the upper clamp.
		score := 0.4*m.SuccessRate()/100 +
			0.4*m.PositiveFeedbackRate()/100 +
			0.2*m.AvgConfidence()
		target := score * o.cfg.MaxWeight

		w := prev*o.cfg.Decay + target*(1-o.cfg.Decay)
		w = clampWeight(w, o.cfg.MinWeight, o.cfg.MaxWeight)

		if w != prev {
			changed[at] = w
		}
		next[at] = w
	}

	o.weights.Store(next)
	o.pending.Store(0)

	if len(changed) == 0 {
		return nil
	}

	if err := o.store.SaveWeights(ctx, next); err != nil {
		o.log.Warn("failed to persist weights", "error", err)
	}

	o.publishUpdated(ctx, changed)
	o.log.Info("weights recomputed", "changed", len(changed))
	return nil
}

// NotifyFeedback signals that feedback arrived. Every FeedbackBatch
// signals trigger an early recompute in Run.
func (o *Optimizer) NotifyFeedback() {
	if o.cfg.FeedbackBatch <= 0 {
		return
	}
	if int(o.pending.Add(1)) < o.cfg.FeedbackBatch {
		return
	}
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run recomputes weights on the configured interval and whenever a
// feedback batch accumulates, until ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.RecomputeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.trigger:
		}
		if err := o.OptimizeWeights(ctx); err != nil {
			o.log.Error("weight recompute failed", "error", err)
		}
	}
}

func (o *Optimizer) copyWeights() map[Type]float64 {
	snapshot := o.weights.Load().(map[Type]float64)
	out := make(map[Type]float64, len(snapshot))
	for at, w := range snapshot {
		out[at] = w
	}
	return out
}

func (o *Optimizer) publishUpdated(ctx context.Context, changed map[Type]float64) {
	if o.bus == nil {
		return
	}
	event := bus.Event{
		ID:        fmt.Sprintf("weights-%d", time.Now().UnixNano()),
		Type:      bus.TopicWeightsUpdated,
		Source:    "optimizer",
		Timestamp: time.Now().Unix(),
		Payload:   changed,
	}
	if err := o.bus.Publish(ctx, bus.TopicWeightsUpdated, event); err != nil {
		o.log.Warn("failed to publish weight update", "error", err)
	}
}

func clampWeight(w, min, max float64) float64 {
	if w < min {
		return min
	}
	if w > max {
		return max
	}
	return w
}
