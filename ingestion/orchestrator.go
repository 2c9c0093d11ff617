package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/crawl"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/extract"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/tagging"
	"github.com/poiesic/enrich/vectorstore"
)

const (
	// DefaultCollection is the vector store collection records are uploaded to.
	DefaultCollection = "documents"

	// DefaultMaxRetries caps explicit retries of a failed record.
	DefaultMaxRetries = 5

	// DefaultTaggingTimeout bounds how long a record waits for background tagging.
	DefaultTaggingTimeout = 30 * time.Second
)

// Orchestrator moves ingestion records through extraction, tagging,
// embedding and vector upload.
type Orchestrator struct {
	records   storage.IngestionRecordStore
	blobs     storage.BlobStore
	uploader  *vectorstore.Uploader
	crawler   crawl.Crawler
	extractor *extract.Extractor
	tagger    *tagging.Service
	embedder  *embedding.Service
	pool      *ants.Pool
	gate      *Gate
	inflight  sync.WaitGroup
	active    sync.Map // core.ID of records in Process

	collection     string
	maxRetries     int
	taggingTimeout time.Duration
	staleAfter     time.Duration
	maxTags        int
	embeddingOpts  []embedding.Option
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets how many records are processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithCollection sets the vector store collection.
func WithCollection(name string) Option {
	return func(o *Orchestrator) error {
		if name == "" {
			return core.ConfigurationError("collection name is required")
		}
		o.collection = name
		return nil
	}
}

// WithMaxRetries caps how many times a failed record may be retried.
// Zero means unlimited.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return core.ConfigurationError("max retries must not be negative, got %d", n)
		}
		o.maxRetries = n
		return nil
	}
}

// WithTaggingTimeout bounds how long Process waits for background tagging.
func WithTaggingTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return core.ConfigurationError("tagging timeout must be positive, got %s", d)
		}
		o.taggingTimeout = d
		return nil
	}
}

// WithMaxTags caps the number of tags stored per record.
func WithMaxTags(n int) Option {
	return func(o *Orchestrator) error {
		o.maxTags = n
		return nil
	}
}

// WithEmbeddingOptions passes options through to the embedding service.
func WithEmbeddingOptions(opts ...embedding.Option) Option {
	return func(o *Orchestrator) error {
		o.embeddingOpts = append(o.embeddingOpts, opts...)
		return nil
	}
}

// WithCrawler sets the crawler used by AcceptCrawl.
func WithCrawler(crawler crawl.Crawler) Option {
	return func(o *Orchestrator) error {
		o.crawler = crawler
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the given stores and services.
func NewOrchestrator(
	records storage.IngestionRecordStore,
	blobs storage.BlobStore,
	provider ai.AIProvider,
	uploader *vectorstore.Uploader,
	opts ...Option,
) (*Orchestrator, error) {
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if uploader == nil {
		return nil, ErrUploaderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		records:        records,
		blobs:          blobs,
		uploader:       uploader,
		pool:           pool,
		gate:           &Gate{},
		collection:     DefaultCollection,
		maxRetries:     DefaultMaxRetries,
		taggingTimeout: DefaultTaggingTimeout,
		staleAfter:     DefaultStaleAfter,
		maxTags:        tagging.DefaultMaxTags,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}

	// Services are built after options so they see the final logger and limits.
	o.extractor = extract.New(extract.WithLogger(o.logger))
	o.tagger, err = tagging.NewService(provider.Tagger(), records,
		tagging.WithMaxTags(o.maxTags), tagging.WithLogger(o.logger))
	if err != nil {
		o.Release()
		return nil, err
	}
	embeddingOpts := append([]embedding.Option{
		embedding.WithPauser(o.gate),
		embedding.WithLogger(o.logger),
	}, o.embeddingOpts...)
	o.embedder, err = embedding.NewService(provider.Embedder(), embeddingOpts...)
	if err != nil {
		o.Release()
		return nil, err
	}

	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Collection returns the vector store collection records are uploaded to.
func (o *Orchestrator) Collection() string {
	return o.collection
}

// Embedder returns the embedding service shared with the pipeline.
func (o *Orchestrator) Embedder() *embedding.Service {
	return o.embedder
}

// Submit queues records for asynchronous processing.
// Each record is processed by a single worker; failures are logged and
// recorded on the record. Use Wait to block until queued work finishes.
func (o *Orchestrator) Submit(ctx context.Context, ids ...core.ID) error {
	for _, id := range ids {
		o.inflight.Add(1)
		err := o.pool.Submit(func() {
			defer o.inflight.Done()
			if err := o.gate.Wait(ctx); err != nil {
				o.logger.Warn("record not processed", "record", id, "err", err)
				return
			}
			if err := o.Process(ctx, id); err != nil {
				o.logger.Error("error processing record", "record", id, "err", err)
			}
		})
		if err != nil {
			o.inflight.Done()
			return err
		}
	}
	return nil
}

// SubmitPending queues every pending record and returns how many were queued.
// Interrupted records are marked failed first; they need an explicit Retry.
func (o *Orchestrator) SubmitPending(ctx context.Context) (int, error) {
	if _, err := o.RecoverInterrupted(ctx); err != nil {
		return 0, err
	}
	pending, _, err := o.records.ListRecords(ctx, storage.RecordFilter{Status: core.StatusPending})
	if err != nil {
		return 0, err
	}
	ids := make([]core.ID, len(pending))
	for i, record := range pending {
		ids[i] = record.Id
	}
	return len(ids), o.Submit(ctx, ids...)
}

// Wait blocks until every submitted record has been processed.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Pause stops new work from starting. Running stages finish normally.
func (o *Orchestrator) Pause() {
	o.gate.Pause()
	o.logger.Info("processing paused")
}

// Resume restarts paused work.
func (o *Orchestrator) Resume() {
	o.gate.Resume()
	o.logger.Info("processing resumed")
}

// Paused reports whether processing is paused.
func (o *Orchestrator) Paused() bool {
	return o.gate.Paused()
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}
