package agent

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStorageExecutionsRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	execs := []Execution{
		{TraceID: "t1", AgentType: TypeGeneral, UserID: "u1", Success: true, Confidence: 0.9, DurationMs: 120, Timestamp: now.Add(-2 * time.Hour)},
		{TraceID: "t2", AgentType: TypeMonitoring, Success: false, Confidence: 0.4, Timestamp: now.Add(-time.Hour)},
		{TraceID: "t3", AgentType: TypeGeneral, Success: true, Confidence: 0.7, Timestamp: now},
	}
	for _, e := range execs {
		if err := store.SaveExecution(ctx, e); err != nil {
			t.Fatalf("SaveExecution failed: %v", err)
		}
	}

	all, err := store.LoadExecutions(ctx, time.Time{})
	if err != nil {
		t.Fatalf("LoadExecutions failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d executions, want 3", len(all))
	}
	for _, e := range all {
		if e.TraceID == "t1" && (e.UserID != "u1" || e.DurationMs != 120) {
			t.Errorf("t1 did not round-trip user/duration: %+v", e)
		}
	}

	recent, err := store.LoadExecutions(ctx, now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("LoadExecutions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d recent executions, want 2", len(recent))
	}
}

func TestMemoryStorageFeedbackSinceFilter(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	fbs := []Feedback{
		{TraceID: "t1", Rating: 5, Timestamp: now.Add(-3 * time.Hour)},
		{TraceID: "t2", Rating: 2, Timestamp: now},
	}
	for _, f := range fbs {
		if err := store.SaveFeedback(ctx, f); err != nil {
			t.Fatalf("SaveFeedback failed: %v", err)
		}
	}

	recent, err := store.LoadFeedback(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LoadFeedback failed: %v", err)
	}
	if len(recent) != 1 || recent[0].TraceID != "t2" {
		t.Errorf("got %+v, want only t2", recent)
	}
}

func TestMemoryStorageWeightsRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	want := map[Type]float64{
		TypeInvestmentAdvisor: 1.4,
		TypeMonitoring:        0.7,
	}
	if err := store.SaveWeights(ctx, want); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	got, err := store.LoadWeights(ctx)
	if err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d weights, want %d", len(got), len(want))
	}
	for at, w := range want {
		if got[at] != w {
			t.Errorf("weight[%s] = %.2f, want %.2f", at, got[at], w)
		}
	}

	// The returned map is a copy.
	got[TypeGeneral] = 9.9
	again, err := store.LoadWeights(ctx)
	if err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}
	if _, ok := again[TypeGeneral]; ok {
		t.Error("mutating the loaded map leaked into storage")
	}
}

func TestMemoryStorageReset(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	if err := store.SaveExecution(ctx, Execution{TraceID: "g1", AgentType: TypeGeneral, Timestamp: now}); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}
	if err := store.SaveExecution(ctx, Execution{TraceID: "m1", AgentType: TypeMonitoring, Timestamp: now}); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}
	if err := store.SaveFeedback(ctx, Feedback{TraceID: "g1", Rating: 5, Timestamp: now}); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}
	if err := store.SaveWeights(ctx, map[Type]float64{TypeGeneral: 1.3, TypeMonitoring: 0.8}); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	if err := store.Reset(ctx, TypeGeneral); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	execs, err := store.LoadExecutions(ctx, time.Time{})
	if err != nil {
		t.Fatalf("LoadExecutions failed: %v", err)
	}
	if len(execs) != 1 || execs[0].AgentType != TypeMonitoring {
		t.Errorf("got %+v, want only the monitoring execution", execs)
	}

	fbs, err := store.LoadFeedback(ctx, time.Time{})
	if err != nil {
		t.Fatalf("LoadFeedback failed: %v", err)
	}
	if len(fbs) != 0 {
		t.Errorf("got %d feedback records after reset, want 0", len(fbs))
	}

	weights, err := store.LoadWeights(ctx)
	if err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}
	if _, ok := weights[TypeGeneral]; ok {
		t.Error("reset agent's weight still stored")
	}
	if weights[TypeMonitoring] != 0.8 {
		t.Errorf("other agent's weight = %.2f, want 0.8", weights[TypeMonitoring])
	}
}
