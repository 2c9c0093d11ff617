package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/ai/mock"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/crawl"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/storage/badger"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBlobStore fails every Get.
type failingBlobStore struct {
	storage.BlobStore
}

func (f failingBlobStore) Get(ctx context.Context, handle string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

// flakyVectorStore fails InsertBatch while failInserts is set.
type flakyVectorStore struct {
	vectorstore.Store
	mu          sync.Mutex
	failInserts bool
}

func (f *flakyVectorStore) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failInserts = failing
}

func (f *flakyVectorStore) InsertBatch(ctx context.Context, collection string, objects []vectorstore.Object) (int, error) {
	f.mu.Lock()
	failing := f.failInserts
	f.mu.Unlock()
	if failing {
		return 0, errors.New("connection refused")
	}
	return f.Store.InsertBatch(ctx, collection, objects)
}

type fakeCrawler struct {
	pages []crawl.Page
	err   error

	opts        crawl.Options
	searchOpts  crawl.SearchOptions
	extractOpts crawl.ExtractOptions
	query       string
	prompt      string
}

func (f *fakeCrawler) Crawl(ctx context.Context, url string, opts crawl.Options) ([]crawl.Page, error) {
	f.opts = opts
	return f.pages, f.err
}

func (f *fakeCrawler) Search(ctx context.Context, query string, opts crawl.SearchOptions) ([]crawl.Page, error) {
	f.query = query
	f.searchOpts = opts
	return f.pages, f.err
}

func (f *fakeCrawler) Extract(ctx context.Context, url, prompt string, opts crawl.ExtractOptions) (crawl.Page, error) {
	f.prompt = prompt
	f.extractOpts = opts
	if f.err != nil || len(f.pages) == 0 {
		return crawl.Page{}, f.err
	}
	return f.pages[0], nil
}

type testEnv struct {
	orchestrator *Orchestrator
	records      storage.IngestionRecordStore
	blobs        storage.BlobStore
	vectors      *flakyVectorStore
	provider     *mock.MockProvider
}

func setupOrchestrator(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	records, backend, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		records.Close()
		backend.Close()
	})

	vectors := &flakyVectorStore{Store: badger.NewVectorStore(backend)}
	uploader, err := vectorstore.NewUploader(vectors)
	require.NoError(t, err)

	provider := mock.NewMockProvider().(*mock.MockProvider)
	blobs := badger.NewBlobStore(backend)

	orchestrator, err := NewOrchestrator(records, blobs, provider, uploader, opts...)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Release)

	return &testEnv{
		orchestrator: orchestrator,
		records:      records,
		blobs:        blobs,
		vectors:      vectors,
		provider:     provider,
	}
}

func (e *testEnv) upload(t *testing.T, name, content string) *core.IngestionRecord {
	t.Helper()
	record, err := e.orchestrator.AcceptUpload(context.Background(), core.User{ID: "u1"}, UploadRequest{
		Name: name,
		Data: []byte(content),
	})
	require.NoError(t, err)
	return record
}

func TestNewOrchestrator(t *testing.T) {
	records, backend, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()
	defer records.Close()

	uploader, err := vectorstore.NewUploader(badger.NewVectorStore(backend))
	require.NoError(t, err)
	blobs := badger.NewBlobStore(backend)
	provider := mock.NewMockProvider()

	tests := []struct {
		name     string
		records  storage.IngestionRecordStore
		blobs    storage.BlobStore
		provider ai.AIProvider
		uploader *vectorstore.Uploader
		opts     []Option
		wantErr  error
	}{
		{"valid", records, blobs, provider, uploader, nil, nil},
		{"nil records", nil, blobs, provider, uploader, nil, ErrRecordStoreRequired},
		{"nil blobs", records, nil, provider, uploader, nil, ErrBlobStoreRequired},
		{"nil provider", records, blobs, nil, uploader, nil, ErrAIProviderRequired},
		{"nil uploader", records, blobs, provider, nil, nil, ErrUploaderRequired},
		{"bad retries", records, blobs, provider, uploader, []Option{WithMaxRetries(-1)}, core.ErrConfiguration},
		{"bad timeout", records, blobs, provider, uploader, []Option{WithTaggingTimeout(0)}, core.ErrConfiguration},
		{"empty collection", records, blobs, provider, uploader, []Option{WithCollection("")}, core.ErrConfiguration},
		{"bad max tags", records, blobs, provider, uploader, []Option{WithMaxTags(0)}, core.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrchestrator(tt.records, tt.blobs, tt.provider, tt.uploader, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, o)
				return
			}
			require.NoError(t, err)
			defer o.Release()
			assert.Equal(t, DefaultCollection, o.Collection())
			assert.Equal(t, DefaultMaxRetries, o.maxRetries)
			assert.Equal(t, DefaultTaggingTimeout, o.taggingTimeout)
		})
	}
}

func TestProcess_HelloWorld(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()

	record := env.upload(t, "hello.txt", "hello world")
	assert.Equal(t, core.StatusPending, record.Status)
	assert.Contains(t, record.MimeType, "text/plain")

	require.NoError(t, env.orchestrator.Process(ctx, record.Id))

	got, err := env.orchestrator.Record(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, core.ExtractionStatusCompleted, got.ExtractionStatus)
	assert.Equal(t, "hello world", got.ContentText)
	require.NotNil(t, got.ExtractedContent)
	assert.Equal(t, core.ContentKindText, got.ExtractedContent.Kind)
	assert.Equal(t, 1, got.ExtractedContent.LineCount)
	assert.Equal(t, 11, got.ExtractedContent.CharCount)
	assert.Len(t, got.Embedding, mock.DefaultDimension)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, vectorstore.ObjectID(record.Id), got.VectorObjectID)
	assert.Equal(t, core.TaggingOutcomeTagged, got.TaggingOutcome)
	assert.NotEmpty(t, got.SmartTags)
	assert.False(t, got.ProcessingStartedAt.IsZero())
	assert.False(t, got.ProcessingCompletedAt.IsZero())

	entry, err := env.orchestrator.QueueEntry(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExtractionStatusCompleted, entry.Status)
	assert.Equal(t, 100, entry.Progress)

	matches, err := env.vectors.Query(ctx, DefaultCollection, got.Embedding, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, got.VectorObjectID, matches[0].Object.ID)
	assert.Equal(t, "hello.txt", matches[0].Object.Properties.Title)
	assert.Equal(t, "hello world", matches[0].Object.Properties.Content)
	assert.Equal(t, "upload", matches[0].Object.Properties.Source)
}

func TestProcess_OnlyPendingRecords(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	record := env.upload(t, "a.txt", "some text")

	require.NoError(t, env.orchestrator.Process(ctx, record.Id))

	err := env.orchestrator.Process(ctx, record.Id)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)

	err = env.orchestrator.Process(ctx, 9999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestProcess_BlobReadFailure(t *testing.T) {
	records, backend, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer backend.Close()
	defer records.Close()
	uploader, err := vectorstore.NewUploader(badger.NewVectorStore(backend))
	require.NoError(t, err)
	blobs := failingBlobStore{BlobStore: badger.NewBlobStore(backend)}

	o, err := NewOrchestrator(records, blobs, mock.NewMockProvider(), uploader)
	require.NoError(t, err)
	defer o.Release()
	ctx := context.Background()

	record, err := o.AcceptUpload(ctx, core.Anonymous{}, UploadRequest{Name: "a.txt", Data: []byte("text")})
	require.NoError(t, err)

	err = o.Process(ctx, record.Id)
	require.Error(t, err)

	got, err := records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, core.ExtractionStatusFailed, got.ExtractionStatus)
	assert.Contains(t, got.ErrorMessage, "extraction")
	assert.Contains(t, got.ErrorMessage, "disk on fire")

	entry, err := records.GetQueueEntry(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExtractionStatusFailed, entry.Status)
	assert.NotEmpty(t, entry.ErrorMessage)
}

func TestProcess_EmbeddingFailure(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	env.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service unavailable")
	}

	record := env.upload(t, "a.txt", "some text")
	err := env.orchestrator.Process(ctx, record.Id)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExternalService)

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "embedding service unavailable")
	// Extraction finished before the failure.
	assert.Equal(t, "some text", got.ContentText)
	assert.Equal(t, core.ExtractionStatusCompleted, got.ExtractionStatus)
	assert.Empty(t, got.VectorObjectID)
}

func TestProcess_UploadFailure(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	env.vectors.setFailing(true)

	record := env.upload(t, "a.txt", "some text")
	err := env.orchestrator.Process(ctx, record.Id)
	assert.ErrorIs(t, err, ErrUploadFailed)

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection refused")
	assert.Len(t, got.Embedding, mock.DefaultDimension)
}

func TestProcess_TaggingFailureDoesNotFailRecord(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	env.provider.GetMockTagger().GenerateTagsFunc = func(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
		return nil, errors.New("model overloaded")
	}

	record := env.upload(t, "a.txt", "some text")
	require.NoError(t, env.orchestrator.Process(ctx, record.Id))

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, core.TaggingOutcomeFallback, got.TaggingOutcome)
	require.Len(t, got.SmartTags, 1)
	assert.Equal(t, core.FallbackTag().Name, got.SmartTags[0].Name)
}

func TestProcess_FailureAbandonsTagging(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	release := make(chan struct{})
	env.provider.GetMockTagger().GenerateTagsFunc = func(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
		<-release
		return []ai.GeneratedTag{{Name: "late", Confidence: 0.9, Category: "topic", Description: "arrives after the failure"}}, nil
	}
	env.vectors.setFailing(true)

	record := env.upload(t, "a.txt", "some text")
	require.Error(t, env.orchestrator.Process(ctx, record.Id))
	close(release)

	assert.Never(t, func() bool {
		got, err := env.records.GetRecord(ctx, record.Id)
		return err != nil || len(got.SmartTags) > 0
	}, 200*time.Millisecond, 10*time.Millisecond, "no tags are stored for the failed attempt")

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
}

func TestProcess_TaggingTimeout(t *testing.T) {
	env := setupOrchestrator(t, WithTaggingTimeout(50*time.Millisecond))
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)
	env.provider.GetMockTagger().GenerateTagsFunc = func(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
		<-release
		return nil, errors.New("too late")
	}

	record := env.upload(t, "a.txt", "some text")
	require.NoError(t, env.orchestrator.Process(ctx, record.Id))

	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, core.TaggingOutcomeNone, got.TaggingOutcome)
}

func TestProcess_LongTextIsTruncatedForEmbedding(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	var embedded string
	env.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		embedded = text
		return mock.GenerateDeterministicVector(text, mock.DefaultDimension), nil
	}

	long := make([]byte, 40000)
	for i := range long {
		long[i] = 'a'
	}
	record := env.upload(t, "long.txt", string(long))
	require.NoError(t, env.orchestrator.Process(ctx, record.Id))
	assert.Len(t, embedded, 32000)
}

func TestProcess_CrawledPage(t *testing.T) {
	crawler := &fakeCrawler{pages: []crawl.Page{
		{URL: "https://example.com/", Title: "Example", Markdown: "# Example\n\nWelcome"},
	}}
	env := setupOrchestrator(t, WithCrawler(crawler), WithCollection("pages"))
	ctx := context.Background()

	records, err := env.orchestrator.AcceptCrawl(ctx, core.Anonymous{}, "https://example.com", crawl.Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, env.orchestrator.Process(ctx, records[0].Id))
	got, err := env.records.GetRecord(ctx, records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, "Example", got.Title)

	matches, err := env.vectors.Query(ctx, "pages", got.Embedding, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://example.com/", matches[0].Object.Properties.URL)
	assert.Equal(t, "crawl", matches[0].Object.Properties.Source)
}

func TestSubmit_ProcessesConcurrently(t *testing.T) {
	env := setupOrchestrator(t, WithPoolSize(4))
	ctx := context.Background()

	ids := make([]core.ID, 10)
	for i := range ids {
		ids[i] = env.upload(t, "doc.txt", "document number "+string(rune('a'+i))).Id
	}

	require.NoError(t, env.orchestrator.Submit(ctx, ids...))
	env.orchestrator.Wait()

	stats, err := env.orchestrator.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats[core.StatusCompleted])
	assert.Zero(t, stats[core.StatusPending])
	assert.Zero(t, stats[core.StatusFailed])

	vectorStats, err := env.vectors.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, vectorStats, 1)
	assert.Equal(t, 10, vectorStats[0].ObjectCount)
}

func TestSubmitPending(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	env.upload(t, "a.txt", "first")
	env.upload(t, "b.txt", "second")

	n, err := env.orchestrator.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	env.orchestrator.Wait()

	stats, err := env.orchestrator.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[core.StatusCompleted])
}

func TestPauseResume(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()
	record := env.upload(t, "a.txt", "paused text")

	env.orchestrator.Pause()
	assert.True(t, env.orchestrator.Paused())
	require.NoError(t, env.orchestrator.Submit(ctx, record.Id))

	time.Sleep(50 * time.Millisecond)
	got, err := env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)

	env.orchestrator.Resume()
	assert.False(t, env.orchestrator.Paused())
	env.orchestrator.Wait()

	got, err = env.records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
}

func TestRelease(t *testing.T) {
	env := setupOrchestrator(t)
	env.orchestrator.Release()
	err := env.orchestrator.Submit(context.Background(), 1)
	assert.Error(t, err)
}
