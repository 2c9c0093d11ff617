package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/enrich/ai/mock"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/storage/badger"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "documents"

type fixture struct {
	searcher *Searcher
	uploader *vectorstore.Uploader
	embedder *mock.MockEmbedder
}

// setupSearcher embeds every query as the unit x vector.
func setupSearcher(t *testing.T) *fixture {
	t.Helper()
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	svc, err := embedding.NewService(embedder, embedding.WithPaceDelay(0))
	require.NoError(t, err)
	uploader, err := vectorstore.NewUploader(badger.NewVectorStore(backend))
	require.NoError(t, err)
	searcher, err := NewSearcher(svc, uploader)
	require.NoError(t, err)
	return &fixture{searcher: searcher, uploader: uploader, embedder: embedder}
}

func (f *fixture) load(t *testing.T, objects ...vectorstore.Object) {
	t.Helper()
	result, err := f.uploader.Upload(context.Background(), testCollection, objects)
	require.NoError(t, err)
	require.NoError(t, result.Err())
}

func object(id, content string, vector ...float32) vectorstore.Object {
	return vectorstore.Object{ID: id, Vector: vector, Properties: vectorstore.Properties{Title: id, Content: content}}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Object.ID
	}
	return out
}

func TestNewSearcher(t *testing.T) {
	svc, err := embedding.NewService(mock.NewMockEmbedder())
	require.NoError(t, err)
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	uploader, err := vectorstore.NewUploader(badger.NewVectorStore(backend))
	require.NoError(t, err)

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(svc, uploader)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(svc, uploader, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("with custom logger", func(t *testing.T) {
		_, err := NewSearcher(svc, uploader, WithLogger(slog.Default()))
		require.NoError(t, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(nil, uploader)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("nil uploader", func(t *testing.T) {
		_, err := NewSearcher(svc, nil)
		assert.Equal(t, ErrUploaderRequired, err)
	})
}

func TestSearch_RanksBySimilarityAndKeywords(t *testing.T) {
	f := setupSearcher(t)
	f.load(t,
		object("exact", "wind turbines", 1, 0, 0),
		object("verbatim", "solar panels on roofs", 0.9, 0.1, 0),
		object("far", "solar", 0, 1, 0),
	)

	results, err := f.searcher.Search(context.Background(), testCollection, "the solar panels", 3, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"verbatim", "exact", "far"}, ids(results))

	assert.InDelta(t, 1.0, results[0].Coverage, 0.001)
	assert.Greater(t, results[0].Score, results[0].Similarity)
	assert.InDelta(t, 1.0, results[1].Similarity, 0.001)
	assert.Zero(t, results[1].Coverage)
	assert.InDelta(t, 0.5, results[2].Coverage, 0.001, "one of two keywords")
}

func TestSearch_LimitAndDistance(t *testing.T) {
	f := setupSearcher(t)
	f.load(t,
		object("a", "alpha", 1, 0, 0),
		object("b", "beta", 0.8, 0.2, 0),
		object("c", "gamma", 0, 1, 0),
	)
	ctx := context.Background()

	results, err := f.searcher.Search(ctx, testCollection, "query", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(results))

	results, err = f.searcher.Search(ctx, testCollection, "query", 10, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(results), "c is too far")

	results, err = f.searcher.Search(ctx, testCollection, "query", 0, 0)
	require.NoError(t, err)
	assert.Len(t, results, 3, "non-positive limit uses the default")
}

func TestSearch_Validation(t *testing.T) {
	f := setupSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		collection  string
		query       string
		limit       int
		maxDistance float32
	}{
		{"no collection", "", "query", 5, 0},
		{"empty query", testCollection, "   ", 5, 0},
		{"limit too large", testCollection, "query", MaxLimit + 1, 0},
		{"distance too large", testCollection, "query", 5, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.searcher.Search(ctx, tt.collection, tt.query, tt.limit, tt.maxDistance)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
	assert.Zero(t, f.embedder.CallCount(), "invalid searches never reach the embedder")
}

func TestSearch_ExternalFailures(t *testing.T) {
	f := setupSearcher(t)
	ctx := context.Background()

	_, err := f.searcher.Search(ctx, "missing", "query", 5, 0)
	assert.ErrorIs(t, err, core.ErrExternalService)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("model offline")
	}
	_, err = f.searcher.Search(ctx, testCollection, "query", 5, 0)
	assert.ErrorIs(t, err, core.ErrExternalService)
}

type recordingMonitor struct {
	noopMonitor
	query     string
	dimension int
	matches   int
	verbatim  []string
	results   int
}

func (m *recordingMonitor) Start(query string)     { m.query = query }
func (m *recordingMonitor) AfterEmbedding(dim int) { m.dimension = dim }
func (m *recordingMonitor) AfterVectorQuery(matches []vectorstore.Match) {
	m.matches = len(matches)
}
func (m *recordingMonitor) VerbatimHit(match vectorstore.Match, _ float32) {
	m.verbatim = append(m.verbatim, match.Object.ID)
}
func (m *recordingMonitor) Finish(results []Result) { m.results = len(results) }

func TestSearchWithMonitor(t *testing.T) {
	f := setupSearcher(t)
	f.load(t,
		object("a", "lantern festival", 1, 0, 0),
		object("b", "harbor", 0.7, 0.3, 0),
		object("c", "lantern", 0.5, 0.5, 0),
	)

	monitor := &recordingMonitor{}
	results, err := f.searcher.SearchWithMonitor(context.Background(), testCollection, "lantern", 2, 0, monitor)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	assert.Equal(t, "lantern", monitor.query)
	assert.Equal(t, 3, monitor.dimension)
	assert.Equal(t, 3, monitor.matches, "candidates are over-fetched for reranking")
	assert.ElementsMatch(t, []string{"a", "c"}, monitor.verbatim)
	assert.Equal(t, 2, monitor.results)
}

func TestKeywordCoverage(t *testing.T) {
	tests := []struct {
		query  string
		fields []string
		want   float32
	}{
		{"solar panels", []string{"Solar panels!"}, 1},
		{"solar panels", []string{"Solar", "the panels."}, 1},
		{"solar panels", []string{"solar solar"}, 0.5},
		{"the and of", []string{"the and of"}, 0},
		{"lantern", []string{""}, 0},
		{"# Heading", []string{"heading text"}, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, keywordCoverage(tt.query, tt.fields...), 0.001, tt.query)
	}
}
