package retrieval

import (
	"math"
	"sort"
	"time"
)

const neutralRecency = 0.5

// ReRank reorders results by a composite of raw similarity, recency and
// collection diversity. The output is deterministic for a given input set
// and config, and idempotent: reapplying it yields the same ordering.
func ReRank(results []Result, cfg RankConfig) []Result {
	if len(results) == 0 {
		return []Result{}
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Drop results below the raw-score threshold, preserving input order.
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score < cfg.ScoreThreshold {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return []Result{}
	}

	rawWeight := 1 - cfg.DiversityWeight - cfg.RecencyWeight
	if rawWeight < 0 {
		rawWeight = 0
	}

	type scored struct {
		Result
		order int // stable input position, final tie-break
	}

	ranked := make([]scored, len(kept))
	for i, r := range kept {
		raw := clamp01(r.Score)
		recency := recencyFactor(r.Timestamp, now, cfg.RecencyHalfLife)
		diversity := diversityBoost(kept, r)

		r.CompositeScore = clamp01(raw*rawWeight +
			recency*cfg.RecencyWeight +
			diversity*cfg.DiversityWeight)
		ranked[i] = scored{Result: r, order: i}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CompositeScore != ranked[j].CompositeScore {
			return ranked[i].CompositeScore > ranked[j].CompositeScore
		}
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].order < ranked[j].order
	})

	topK := cfg.TopK
	if topK <= 0 || topK > len(ranked) {
		topK = len(ranked)
	}

	out := make([]Result, topK)
	for i := range out {
		out[i] = ranked[i].Result
	}
	return out
}

// recencyFactor maps document age to (0, 1]: 1.0 for current documents,
// halving every half-life. Results without a timestamp get a neutral factor.
func recencyFactor(ts, now time.Time, halfLife time.Duration) float64 {
	if ts.IsZero() {
		return neutralRecency
	}
	if halfLife <= 0 {
		halfLife = 7 * 24 * time.Hour
	}

	age := now.Sub(ts)
	if age <= 0 {
		return 1.0
	}

	return math.Exp2(-float64(age) / float64(halfLife))
}

// diversityBoost boosts results whose collection is under-represented among
// strictly better-scoring candidates. The boost depends only on raw scores,
// never on input order.
func diversityBoost(candidates []Result, r Result) float64 {
	var higher, sameCollection int
	for _, c := range candidates {
		if c.Score > r.Score {
			higher++
			if c.Collection == r.Collection {
				sameCollection++
			}
		}
	}

	if higher == 0 {
		return 1.0
	}

	return 1.0 - float64(sameCollection)/float64(higher)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
