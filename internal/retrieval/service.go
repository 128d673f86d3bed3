package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nivesh/finassist/internal/bus"
	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/embedding"
	reqctx "github.com/nivesh/finassist/internal/pkg/context"
	"github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/pkg/logger"
	"github.com/nivesh/finassist/internal/pkg/security"
	"github.com/nivesh/finassist/internal/vectorstore"
)

// Service retrieves ranked context for a query across the configured
// vector collections.
type Service struct {
	embed *embedding.Service
	store vectorstore.Gateway
	bus   bus.Bus
	log   *logger.Logger
	cfg   config.RetrievalConfig
}

// NewService creates a retrieval service. events may be nil when no bus
// is wired; degraded retrievals are then only logged.
func NewService(embed *embedding.Service, store vectorstore.Gateway, events bus.Bus, log *logger.Logger, cfg config.RetrievalConfig) *Service {
	return &Service{
		embed: embed,
		store: store,
		bus:   events,
		log:   log,
		cfg:   cfg,
	}
}

// Request is one retrieval call.
type Request struct {
	// Query is the free-text query.
	Query string `json:"query"`

	// UserID scopes user-filtered collections.
	UserID string `json:"user_id"`

	// Options tune this call; zero values use configured defaults.
	Options Options `json:"options"`
}

// Response is the ranked retrieval output.
type Response struct {
	// Results are ranked by composite score, best first.
	Results []Result `json:"results"`

	// Warnings lists collections that failed while others succeeded.
	Warnings []Warning `json:"warnings,omitempty"`

	// Metadata describes how the retrieval was performed.
	Metadata Metadata `json:"metadata"`
}

// Metadata contains retrieval timing and coverage information.
type Metadata struct {
	// EmbedTimeMs is the query embedding time.
	EmbedTimeMs int64 `json:"embed_time_ms"`

	// SearchTimeMs is the vector search fan-out time.
	SearchTimeMs int64 `json:"search_time_ms"`

	// RankTimeMs is the re-ranking time.
	RankTimeMs int64 `json:"rank_time_ms"`

	// CollectionsSearched is the number of collections that answered.
	CollectionsSearched int `json:"collections_searched"`

	// CandidatesConsidered is the number of hits before ranking.
	CandidatesConsidered int `json:"candidates_considered"`
}

// RetrieveContext embeds the query, fans out over the configured
// collections, merges and re-ranks the hits.
//
// Collections fail independently: a failed collection produces a warning
// while the rest still contribute results. Only when every collection
// fails does the call return an error.
func (s *Service) RetrieveContext(ctx context.Context, req Request) (*Response, error) {
	if err := security.ValidateQuery(req.Query); err != nil {
		return nil, errors.InvalidInputError(err.Error())
	}
	if err := security.ValidateUserID(req.UserID); err != nil {
		return nil, errors.InvalidInputError(err.Error())
	}
	req.Query = security.SanitizeQuery(req.Query)

	collections, err := s.resolveCollections(req.Options.Collections)
	if err != nil {
		return nil, err
	}

	embedStart := time.Now()
	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(embedStart)

	searchStart := time.Now()
	merged, warnings, err := s.searchAll(ctx, collections, emb.Vector, req)
	if err != nil {
		return nil, err
	}
	searchTime := time.Since(searchStart)

	candidates := len(merged)

	rankStart := time.Now()
	ranked := ReRank(merged, s.rankConfig(req.Options))
	rankTime := time.Since(rankStart)

	s.log.Debug("retrieval complete",
		"query", security.SanitizeForLog(req.Query),
		"collections", len(collections),
		"failed", len(warnings),
		"candidates", candidates,
		"results", len(ranked),
	)

	return &Response{
		Results:  ranked,
		Warnings: warnings,
		Metadata: Metadata{
			EmbedTimeMs:          embedTime.Milliseconds(),
			SearchTimeMs:         searchTime.Milliseconds(),
			RankTimeMs:           rankTime.Milliseconds(),
			CollectionsSearched:  len(collections) - len(warnings),
			CandidatesConsidered: candidates,
		},
	}, nil
}

// HybridSearch embeds the query and issues exactly one gateway search
// per named collection, in parallel, returning the merged candidate set
// without ranking. Empty collections means all configured ones.
// Collections fail independently; only when every collection fails does
// the call return an error.
func (s *Service) HybridSearch(ctx context.Context, query string, collections []string, userID string, topK int) ([]Result, []Warning, error) {
	if err := security.ValidateQuery(query); err != nil {
		return nil, nil, errors.InvalidInputError(err.Error())
	}
	if err := security.ValidateUserID(userID); err != nil {
		return nil, nil, errors.InvalidInputError(err.Error())
	}
	req := Request{
		Query:   security.SanitizeQuery(query),
		UserID:  userID,
		Options: Options{TopK: topK, Collections: collections},
	}

	cols, err := s.resolveCollections(collections)
	if err != nil {
		return nil, nil, err
	}

	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return nil, nil, err
	}

	return s.searchAll(ctx, cols, emb.Vector, req)
}

// searchAll fans out over cols, degrades on partial failure and merges
// the surviving results in configuration order.
func (s *Service) searchAll(ctx context.Context, cols []config.CollectionConfig, vector []float32, req Request) ([]Result, []Warning, error) {
	perCollection, warnings := s.fanOut(ctx, cols, vector, req)
	if len(warnings) == len(cols) {
		s.publishDegraded(ctx, req, warnings)
		return nil, nil, errors.RetrievalUnavailableError(
			fmt.Errorf("all %d collections failed, first: %s", len(cols), warnings[0].Message))
	}
	if len(warnings) > 0 {
		s.publishDegraded(ctx, req, warnings)
	}
	return mergeHits(cols, perCollection), warnings, nil
}

// searchCollection searches a single collection with a pre-computed
// query vector and converts the hits. It backs the hybrid fan-out.
func (s *Service) searchCollection(ctx context.Context, col config.CollectionConfig, vector []float32, req Request) ([]Result, error) {
	topK := req.Options.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	perCollectionK := s.cfg.PerCollectionK
	if perCollectionK < topK {
		perCollectionK = topK
	}

	var filter *vectorstore.Filter
	if col.FilterByUser {
		if req.UserID == "" {
			return nil, errors.InvalidInputError(
				fmt.Sprintf("collection %s requires a user_id", col.Name))
		}
		filter = &vectorstore.Filter{UserID: req.UserID}
	}

	hits, err := s.store.Search(ctx, col.Name, vector, perCollectionK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, hitToResult(col.Name, h))
	}
	return results, nil
}

func (s *Service) fanOut(ctx context.Context, collections []config.CollectionConfig, vector []float32, req Request) ([][]Result, []Warning) {
	perCollection := make([][]Result, len(collections))
	errs := make([]error, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range collections {
		g.Go(func() error {
			results, err := s.searchCollection(gctx, col, vector, req)
			if err != nil {
				// Collection failures degrade, they never cancel
				// the sibling searches.
				errs[i] = err
				return nil
			}
			perCollection[i] = results
			return nil
		})
	}
	g.Wait()

	var warnings []Warning
	for i, err := range errs {
		if err == nil {
			continue
		}
		s.log.Warn("collection search failed",
			"collection", collections[i].Name,
			"error", err,
		)
		warnings = append(warnings, Warning{
			Collection: collections[i].Name,
			Message:    err.Error(),
		})
	}
	return perCollection, warnings
}

// resolveCollections maps requested collection names onto the configured
// set, preserving configuration order. Empty means all configured.
func (s *Service) resolveCollections(requested []string) ([]config.CollectionConfig, error) {
	if len(requested) == 0 {
		return s.cfg.Collections, nil
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	var out []config.CollectionConfig
	for _, col := range s.cfg.Collections {
		if want[col.Name] {
			out = append(out, col)
			delete(want, col.Name)
		}
	}
	for name := range want {
		return nil, errors.InvalidInputError(fmt.Sprintf("unknown collection: %s", name))
	}
	return out, nil
}

// mergeHits concatenates per-collection results in configuration order
// and drops duplicate IDs, keeping the occurrence with the higher raw
// score. Ties keep the earlier collection's copy.
func mergeHits(collections []config.CollectionConfig, perCollection [][]Result) []Result {
	var merged []Result
	best := make(map[string]int)

	for i := range collections {
		for _, r := range perCollection[i] {
			if j, seen := best[r.ID]; seen {
				if r.Score > merged[j].Score {
					merged[j] = r
				}
				continue
			}
			best[r.ID] = len(merged)
			merged = append(merged, r)
		}
	}
	return merged
}

func (s *Service) rankConfig(opts Options) RankConfig {
	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	threshold := s.cfg.ScoreThreshold
	if opts.ScoreThreshold > 0 {
		threshold = opts.ScoreThreshold
	}
	return RankConfig{
		TopK:            topK,
		ScoreThreshold:  threshold,
		DiversityWeight: s.cfg.DiversityWeight,
		RecencyWeight:   s.cfg.RecencyWeight,
		RecencyHalfLife: time.Duration(s.cfg.RecencyHalfLifeHours) * time.Hour,
	}
}

func (s *Service) publishDegraded(ctx context.Context, req Request, warnings []Warning) {
	if s.bus == nil {
		return
	}
	event := bus.Event{
		ID:        fmt.Sprintf("degraded-%d", time.Now().UnixNano()),
		Type:      bus.TopicRetrievalDegraded,
		Source:    "retrieval",
		Timestamp: time.Now().Unix(),
		Payload: map[string]any{
			"request_id": reqctx.GetRequestID(ctx),
			"user_id":    req.UserID,
			"warnings":   warnings,
		},
	}
	if err := s.bus.Publish(ctx, bus.TopicRetrievalDegraded, event); err != nil {
		s.log.Warn("failed to publish degraded event", "error", err)
	}
}

func hitToResult(collection string, h vectorstore.Hit) Result {
	r := Result{
		ID:         h.ID,
		Collection: collection,
		Score:      h.Score,
		Content:    h.Content(),
	}
	if ts, ok := h.Timestamp(); ok {
		r.Timestamp = ts
	}

	if len(h.Payload) > 0 {
		meta := make(map[string]any, len(h.Payload))
		for k, v := range h.Payload {
			if k == "content" {
				continue
			}
			meta[k] = v
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
	}
	return r
}
