package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/crawl"
	"github.com/poiesic/enrich/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptUpload(t *testing.T) {
	env := setupOrchestrator(t)
	ctx := context.Background()

	record, err := env.orchestrator.AcceptUpload(ctx, core.User{ID: "alice"}, UploadRequest{
		Name:     "data.json",
		MimeType: "application/json",
		Data:     []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.NotZero(t, record.Id)
	assert.Equal(t, core.StatusPending, record.Status)
	assert.Equal(t, core.SourceKindUpload, record.SourceKind)
	assert.Equal(t, "application/json", record.MimeType)
	assert.Equal(t, int64(7), record.ByteSize)
	assert.True(t, strings.HasPrefix(record.BlobPath, "uploads/alice/"))
	assert.True(t, strings.HasSuffix(record.BlobPath, "/data.json"))
	assert.Equal(t, record.BlobPath, record.SourceLocator)

	data, err := env.blobs.Get(ctx, record.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	entry, err := env.records.GetQueueEntry(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExtractionStatusPending, entry.Status)

	// Identical bytes get distinct blobs.
	again, err := env.orchestrator.AcceptUpload(ctx, core.User{ID: "alice"}, UploadRequest{Name: "data.json", Data: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.NotEqual(t, record.BlobPath, again.BlobPath)
}

func TestAcceptUpload_Validation(t *testing.T) {
	env := setupOrchestrator(t)
	_, err := env.orchestrator.AcceptUpload(context.Background(), core.Anonymous{}, UploadRequest{Name: "  ", Data: []byte("x")})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAcceptUpload_AnonymousAndUnknownType(t *testing.T) {
	env := setupOrchestrator(t)
	record, err := env.orchestrator.AcceptUpload(context.Background(), nil, UploadRequest{Name: "../blob.unknownext", Data: []byte{0, 1, 2}})
	require.NoError(t, err)
	assert.True(t, core.IsAnonymous(record.Owner))
	assert.Equal(t, "application/octet-stream", record.MimeType)
	assert.True(t, strings.HasPrefix(record.BlobPath, "uploads/anonymous/"))
	assert.True(t, strings.HasSuffix(record.BlobPath, "/blob.unknownext"))
}

func TestAcceptCrawl(t *testing.T) {
	crawler := &fakeCrawler{pages: []crawl.Page{
		{URL: "https://example.com/", Title: "Home", Markdown: "# Home"},
		{URL: "https://example.com/about", Content: "About us"},
		{URL: "https://example.com/mirror", Title: "Mirror", Markdown: "# Home"},
		{URL: "https://example.com/empty", Markdown: "   "},
	}}
	env := setupOrchestrator(t, WithCrawler(crawler))
	ctx := context.Background()

	records, err := env.orchestrator.AcceptCrawl(ctx, core.User{ID: "bob"}, " https://example.com ", crawl.Options{Limit: 5})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 5, crawler.opts.Limit)
	assert.Equal(t, crawl.DefaultMaxDepth, crawler.opts.MaxDepth)
	assert.Equal(t, []string{crawl.DefaultFormat}, crawler.opts.Formats)

	home := records[0]
	assert.Equal(t, core.SourceKindCrawl, home.SourceKind)
	assert.Equal(t, "https://example.com/", home.SourceLocator)
	assert.Equal(t, CrawlMimeType, home.MimeType)
	assert.Equal(t, "Home", home.DeclaredName)
	assert.Equal(t, "Home", home.Title)
	data, err := env.blobs.Get(ctx, home.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "# Home", string(data))

	about := records[1]
	assert.Equal(t, "https://example.com/about", about.DeclaredName)
	data, err = env.blobs.Get(ctx, about.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "About us", string(data))
}

func TestAcceptCrawl_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no crawler", func(t *testing.T) {
		env := setupOrchestrator(t)
		_, err := env.orchestrator.AcceptCrawl(ctx, core.Anonymous{}, "https://example.com", crawl.Options{})
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.ErrorIs(t, err, ErrCrawlerRequired)
	})

	t.Run("invalid url", func(t *testing.T) {
		env := setupOrchestrator(t, WithCrawler(&fakeCrawler{}))
		_, err := env.orchestrator.AcceptCrawl(ctx, core.Anonymous{}, "ftp://example.com", crawl.Options{})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("crawler failure", func(t *testing.T) {
		env := setupOrchestrator(t, WithCrawler(&fakeCrawler{err: errors.New("quota exceeded")}))
		records, err := env.orchestrator.AcceptCrawl(ctx, core.Anonymous{}, "https://example.com", crawl.Options{})
		assert.ErrorIs(t, err, core.ErrExternalService)
		assert.Empty(t, records)

		_, total, err := env.records.ListRecords(ctx, storage.RecordFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestAcceptSearch(t *testing.T) {
	crawler := &fakeCrawler{pages: []crawl.Page{
		{URL: "https://go.dev/blog/generics", Title: "Generics", Content: "An introduction", Markdown: "# Generics"},
		{URL: "https://go.dev/ref/spec", Title: "Spec", Content: "The language reference"},
		{URL: "", Content: "no url"},
	}}
	env := setupOrchestrator(t, WithCrawler(crawler))
	ctx := context.Background()

	records, err := env.orchestrator.AcceptSearch(ctx, core.User{ID: "carol"}, " go generics ", crawl.SearchOptions{TimeFilter: "qdr:m"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "go generics", crawler.query)
	assert.Equal(t, crawl.DefaultSearchLimit, crawler.searchOpts.Limit)
	assert.Equal(t, "qdr:m", crawler.searchOpts.TimeFilter)

	assert.Equal(t, core.SourceKindCrawl, records[0].SourceKind)
	assert.Equal(t, "https://go.dev/blog/generics", records[0].SourceLocator)
	data, err := env.blobs.Get(ctx, records[0].BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "# Generics", string(data))

	data, err = env.blobs.Get(ctx, records[1].BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "The language reference", string(data))
}

func TestAcceptSearch_Errors(t *testing.T) {
	ctx := context.Background()

	env := setupOrchestrator(t)
	_, err := env.orchestrator.AcceptSearch(ctx, core.Anonymous{}, "golang", crawl.SearchOptions{})
	assert.ErrorIs(t, err, ErrCrawlerRequired)

	env = setupOrchestrator(t, WithCrawler(&fakeCrawler{}))
	_, err = env.orchestrator.AcceptSearch(ctx, core.Anonymous{}, "  ", crawl.SearchOptions{})
	assert.ErrorIs(t, err, core.ErrValidation)

	env = setupOrchestrator(t, WithCrawler(&fakeCrawler{err: errors.New("rate limited")}))
	_, err = env.orchestrator.AcceptSearch(ctx, core.Anonymous{}, "golang", crawl.SearchOptions{})
	assert.ErrorIs(t, err, core.ErrExternalService)
}

func TestAcceptExtract(t *testing.T) {
	crawler := &fakeCrawler{pages: []crawl.Page{{
		Title:     "Extracted Data",
		Markdown:  "# Lamp",
		Extracted: `{"price": 30}`,
	}}}
	env := setupOrchestrator(t, WithCrawler(crawler))
	ctx := context.Background()

	record, err := env.orchestrator.AcceptExtract(ctx, core.Anonymous{}, "https://shop.example.com/lamp", "the price", crawl.ExtractOptions{WaitFor: 500})
	require.NoError(t, err)
	assert.Equal(t, "the price", crawler.prompt)
	assert.EqualValues(t, 500, crawler.extractOpts.WaitFor)

	assert.Equal(t, "https://shop.example.com/lamp", record.SourceLocator)
	assert.Equal(t, "Extracted Data", record.Title)
	assert.Equal(t, core.StatusPending, record.Status)
	data, err := env.blobs.Get(ctx, record.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, "{\"price\": 30}\n\n# Lamp", string(data))
}

func TestAcceptExtract_Errors(t *testing.T) {
	ctx := context.Background()

	env := setupOrchestrator(t, WithCrawler(&fakeCrawler{}))
	_, err := env.orchestrator.AcceptExtract(ctx, core.Anonymous{}, "https://example.com", " ", crawl.ExtractOptions{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.orchestrator.AcceptExtract(ctx, core.Anonymous{}, "example.com", "price", crawl.ExtractOptions{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.orchestrator.AcceptExtract(ctx, core.Anonymous{}, "https://example.com", "price", crawl.ExtractOptions{})
	assert.ErrorIs(t, err, ErrNothingExtracted)

	env = setupOrchestrator(t, WithCrawler(&fakeCrawler{err: errors.New("timeout")}))
	_, err = env.orchestrator.AcceptExtract(ctx, core.Anonymous{}, "https://example.com", "price", crawl.ExtractOptions{})
	assert.ErrorIs(t, err, core.ErrExternalService)

	_, total, err := env.records.ListRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
