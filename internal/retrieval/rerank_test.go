package retrieval

import (
	"math"
	"testing"
	"time"
)

func baseRankConfig() RankConfig {
	return RankConfig{
		TopK:            10,
		ScoreThreshold:  0.3,
		DiversityWeight: 0.15,
		RecencyWeight:   0.15,
		RecencyHalfLife: 168 * time.Hour,
		Now:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReRankEmpty(t *testing.T) {
	out := ReRank(nil, baseRankConfig())
	if len(out) != 0 {
		t.Errorf("got %d results, want 0", len(out))
	}
}

func TestReRankDropsBelowThreshold(t *testing.T) {
	results := []Result{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.29},
		{ID: "c", Score: 0.3},
	}

	out := ReRank(results, baseRankConfig())
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	for _, r := range out {
		if r.ID == "b" {
			t.Error("result below threshold survived ranking")
		}
	}
}

func TestReRankTruncatesToTopK(t *testing.T) {
	cfg := baseRankConfig()
	cfg.TopK = 2

	results := []Result{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.8},
		{ID: "c", Score: 0.7},
		{ID: "d", Score: 0.6},
	}

	out := ReRank(results, cfg)
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].ID != "a" {
		t.Errorf("first result = %q, want %q", out[0].ID, "a")
	}
}

func TestReRankOrderedByCompositeScore(t *testing.T) {
	now := baseRankConfig().Now
	results := []Result{
		{ID: "old-high", Collection: "knowledge_base", Score: 0.85, Timestamp: now.Add(-90 * 24 * time.Hour)},
		{ID: "fresh-mid", Collection: "user_context", Score: 0.75, Timestamp: now.Add(-time.Hour)},
		{ID: "fresh-low", Collection: "conversation_history", Score: 0.5, Timestamp: now.Add(-time.Hour)},
	}

	out := ReRank(results, baseRankConfig())
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].CompositeScore > out[i-1].CompositeScore {
			t.Errorf("results not ordered: %q (%.4f) after %q (%.4f)",
				out[i].ID, out[i].CompositeScore, out[i-1].ID, out[i-1].CompositeScore)
		}
	}
}

func TestReRankIdempotent(t *testing.T) {
	now := baseRankConfig().Now
	results := []Result{
		{ID: "a", Collection: "knowledge_base", Score: 0.9, Timestamp: now.Add(-48 * time.Hour)},
		{ID: "b", Collection: "knowledge_base", Score: 0.8, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "c", Collection: "user_context", Score: 0.7},
		{ID: "d", Collection: "conversation_history", Score: 0.65, Timestamp: now.Add(-300 * time.Hour)},
		{ID: "e", Collection: "user_context", Score: 0.5, Timestamp: now.Add(-time.Hour)},
	}

	first := ReRank(results, baseRankConfig())
	second := ReRank(first, baseRankConfig())

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
		if math.Abs(first[i].CompositeScore-second[i].CompositeScore) > 1e-9 {
			t.Errorf("position %d: composite %.6f vs %.6f", i, first[i].CompositeScore, second[i].CompositeScore)
		}
	}
}

func TestReRankRecencyBreaksNearTies(t *testing.T) {
	cfg := baseRankConfig()
	cfg.DiversityWeight = 0

	now := cfg.Now
	results := []Result{
		{ID: "stale", Collection: "knowledge_base", Score: 0.80, Timestamp: now.Add(-60 * 24 * time.Hour)},
		{ID: "fresh", Collection: "knowledge_base", Score: 0.79, Timestamp: now.Add(-time.Hour)},
	}

	out := ReRank(results, cfg)
	if out[0].ID != "fresh" {
		t.Errorf("fresh near-tie result should rank first, got %q", out[0].ID)
	}
}

func TestReRankRecencyWeightMonotonicForNewerResult(t *testing.T) {
	// For an equal-raw-score pair, raising the recency weight must never
	// push the strictly newer result below the older one.
	now := baseRankConfig().Now
	results := []Result{
		{ID: "old", Collection: "knowledge_base", Score: 0.8, Timestamp: now.Add(-90 * 24 * time.Hour)},
		{ID: "new", Collection: "knowledge_base", Score: 0.8, Timestamp: now.Add(-time.Hour)},
	}

	prevPos := len(results)
	for _, rw := range []float64{0, 0.1, 0.2, 0.3, 0.5, 0.8} {
		cfg := baseRankConfig()
		cfg.DiversityWeight = 0
		cfg.RecencyWeight = rw

		out := ReRank(results, cfg)
		if len(out) != 2 {
			t.Fatalf("rw=%.2f: got %d results, want 2", rw, len(out))
		}

		pos := -1
		for i, r := range out {
			if r.ID == "new" {
				pos = i
			}
		}
		if pos == -1 {
			t.Fatalf("rw=%.2f: newer result missing", rw)
		}
		if pos > prevPos {
			t.Errorf("rw=%.2f: newer result dropped from position %d to %d", rw, prevPos, pos)
		}
		prevPos = pos
	}

	if prevPos != 0 {
		t.Errorf("with the highest recency weight the newer result should rank first, got position %d", prevPos)
	}
}

func TestReRankZeroRecencyWeightIgnoresAge(t *testing.T) {
	cfg := baseRankConfig()
	cfg.RecencyWeight = 0

	now := cfg.Now
	results := []Result{
		{ID: "stale", Collection: "knowledge_base", Score: 0.80, Timestamp: now.Add(-365 * 24 * time.Hour)},
		{ID: "fresh", Collection: "knowledge_base", Score: 0.79, Timestamp: now.Add(-time.Hour)},
	}

	out := ReRank(results, cfg)
	if out[0].ID != "stale" {
		t.Errorf("with zero recency weight the higher raw score should win, got %q", out[0].ID)
	}
}

func TestReRankDiversityBoostsMinorityCollection(t *testing.T) {
	results := []Result{
		{ID: "k1", Collection: "knowledge_base", Score: 0.90},
		{ID: "k2", Collection: "knowledge_base", Score: 0.89},
		{ID: "k3", Collection: "knowledge_base", Score: 0.88},
		{ID: "u1", Collection: "user_context", Score: 0.87},
		{ID: "k4", Collection: "knowledge_base", Score: 0.869},
	}

	out := ReRank(results, baseRankConfig())

	posU1, posK4 := -1, -1
	for i, r := range out {
		switch r.ID {
		case "u1":
			posU1 = i
		case "k4":
			posK4 = i
		}
	}
	if posU1 == -1 || posK4 == -1 {
		t.Fatal("expected results missing from output")
	}
	if posU1 > posK4 {
		t.Errorf("under-represented collection should rank ahead of near-tied majority result: u1 at %d, k4 at %d", posU1, posK4)
	}
}

func TestRecencyFactor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	halfLife := 168 * time.Hour

	tests := []struct {
		name string
		ts   time.Time
		want float64
	}{
		{"zero timestamp is neutral", time.Time{}, neutralRecency},
		{"current document", now, 1.0},
		{"future document clamps", now.Add(time.Hour), 1.0},
		{"one half-life", now.Add(-halfLife), 0.5},
		{"two half-lives", now.Add(-2 * halfLife), 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recencyFactor(tt.ts, now, halfLife)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("recencyFactor = %.6f, want %.6f", got, tt.want)
			}
		})
	}
}

func TestDiversityBoost(t *testing.T) {
	candidates := []Result{
		{ID: "a", Collection: "kb", Score: 0.9},
		{ID: "b", Collection: "kb", Score: 0.8},
		{ID: "c", Collection: "uc", Score: 0.7},
		{ID: "d", Collection: "kb", Score: 0.6},
	}

	// Top result has no better-scoring candidates.
	if got := diversityBoost(candidates, candidates[0]); got != 1.0 {
		t.Errorf("top result boost = %.4f, want 1.0", got)
	}

	// "c" has two better candidates, both from another collection.
	if got := diversityBoost(candidates, candidates[2]); got != 1.0 {
		t.Errorf("minority result boost = %.4f, want 1.0", got)
	}

	// "d" has three better candidates, two from its own collection.
	want := 1.0 - 2.0/3.0
	if got := diversityBoost(candidates, candidates[3]); math.Abs(got-want) > 1e-9 {
		t.Errorf("majority result boost = %.4f, want %.4f", got, want)
	}
}
