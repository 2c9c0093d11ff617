package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/vectorstore"
)

const (
	// DefaultLimit is used when Search is called with a non-positive limit.
	DefaultLimit = 10

	// MaxLimit caps the number of results of one search.
	MaxLimit = 100

	// verbatimBoost is added, scaled by keyword coverage, to the similarity score.
	verbatimBoost = 0.3

	// candidateFactor widens the vector query so reranking can promote verbatim hits.
	candidateFactor = 2
)

// Result is one ranked hit. Similarity is 1 - cosine distance.
type Result struct {
	Object     vectorstore.Object
	Distance   float32
	Similarity float32
	Coverage   float32
	Score      float32
}

// Searcher embeds queries and ranks the nearest objects of a collection.
type Searcher struct {
	embedder *embedding.Service
	uploader *vectorstore.Uploader
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(embedder *embedding.Service, uploader *vectorstore.Uploader, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if uploader == nil {
		return nil, ErrUploaderRequired
	}

	s := &Searcher{
		embedder: embedder,
		uploader: uploader,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// Search returns up to limit objects of collection nearest to query.
// maxDistance <= 0 disables the distance cutoff; otherwise it must not exceed 2.
func (s *Searcher) Search(ctx context.Context, collection, query string, limit int, maxDistance float32) ([]Result, error) {
	return s.SearchWithMonitor(ctx, collection, query, limit, maxDistance, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, collection, query string, limit int, maxDistance float32, monitor SearchMonitor) ([]Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if collection == "" {
		return nil, core.ValidationError("collection name is required")
	}
	if err := core.ValidateText(query, s.embedder.MaxTextLength()); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		return nil, core.ValidationError("limit %d exceeds %d", limit, MaxLimit)
	}
	if maxDistance > 2 {
		return nil, core.ValidationError("max distance %.2f exceeds 2", maxDistance)
	}

	monitor.Start(query)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(vector))

	matches, err := s.uploader.Query(ctx, collection, vector, vectorstore.QueryOptions{
		Limit:       limit * candidateFactor,
		MaxDistance: maxDistance,
	})
	if err != nil {
		s.logger.Error("error querying collection", "collection", collection, "err", err)
		return nil, err
	}
	monitor.AfterVectorQuery(matches)

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		props := match.Object.Properties
		coverage := keywordCoverage(query, props.Title, props.Content)
		if coverage > 0 {
			monitor.VerbatimHit(match, coverage)
		}
		similarity := 1 - match.Distance
		results = append(results, Result{
			Object:     match.Object,
			Distance:   match.Distance,
			Similarity: similarity,
			Coverage:   coverage,
			Score:      similarity + verbatimBoost*coverage,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	monitor.Finish(results)

	s.logger.Debug("search finished", "collection", collection, "candidates", len(matches), "results", len(results))
	return results, nil
}
