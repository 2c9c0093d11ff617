// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/ai/langchain"
	"github.com/poiesic/enrich/chat"
	"github.com/poiesic/enrich/config"
	"github.com/poiesic/enrich/crawl"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/ingestion"
	"github.com/poiesic/enrich/reembed"
	"github.com/poiesic/enrich/search"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/storage/badger"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/poiesic/enrich/vectorstore/surreal"
)

// Database wires the stores, the AI provider and the vector store selected by configuration.
type Database struct {
	config      *config.Config
	backend     *badger.Backend
	records     storage.IngestionRecordStore
	blobs       storage.BlobStore
	checkpoints storage.CheckpointRepository
	vectors     vectorstore.Store
	provider    ai.AIProvider
	crawler     crawl.Crawler
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider ai.AIProvider
	vectors  vectorstore.Store
	crawler  crawl.Crawler
	logger   *slog.Logger
}

// WithProvider replaces the configured AI provider.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithVectorStore replaces the configured vector store.
func WithVectorStore(store vectorstore.Store) DatabaseOption {
	return func(o *databaseOptions) {
		o.vectors = store
	}
}

// WithCrawler replaces the configured crawler.
func WithCrawler(crawler crawl.Crawler) DatabaseOption {
	return func(o *databaseOptions) {
		o.crawler = crawler
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open opens the database described by cfg. A nil cfg uses config.Default().
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, err
	}

	records, err := badger.NewRecordStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	db := &Database{
		config:      cfg,
		backend:     backend,
		records:     records,
		blobs:       badger.NewBlobStore(backend),
		checkpoints: badger.NewCheckpointRepository(backend),
		vectors:     options.vectors,
		provider:    options.provider,
		crawler:     options.crawler,
		logger:      options.logger,
	}

	if db.vectors == nil {
		db.vectors, err = openVectorStore(ctx, cfg.VectorStore, backend, options.logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	if db.provider == nil {
		db.provider, err = langchain.NewProvider(cfg.AIConfig())
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	if db.crawler == nil && cfg.Crawler.APIKey != "" {
		db.crawler, err = crawl.NewFirecrawlClient(cfg.Crawler.APIKey,
			crawl.WithBaseURL(cfg.Crawler.URL),
			crawl.WithPollInterval(cfg.Crawler.PollInterval),
			crawl.WithLogger(options.logger))
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func openVectorStore(ctx context.Context, cfg config.VectorStoreConfig, backend *badger.Backend, logger *slog.Logger) (vectorstore.Store, error) {
	if cfg.Backend != config.BackendSurreal {
		return badger.NewVectorStore(backend), nil
	}
	return surreal.Open(ctx, surreal.Config{
		URL:       cfg.URL,
		Namespace: cfg.Namespace,
		Database:  cfg.Database,
		Username:  cfg.Username,
		Password:  cfg.Password,
		AuthLevel: cfg.AuthLevel,
	}, logger)
}

// Close releases the provider, the vector store and the storage backend.
// Every component is closed even if an earlier one fails.
func (db *Database) Close() error {
	var errs []error
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if db.vectors != nil {
		if err := db.vectors.Close(); err != nil {
			db.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if err := db.records.Close(); err != nil {
		db.logger.Error("error closing record store", "err", err)
		errs = append(errs, err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Config() *config.Config {
	return db.config
}

func (db *Database) RecordStore() storage.IngestionRecordStore {
	return db.records
}

func (db *Database) BlobStore() storage.BlobStore {
	return db.blobs
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpoints
}

func (db *Database) VectorStore() vectorstore.Store {
	return db.vectors
}

// Collection is the configured vector collection.
func (db *Database) Collection() string {
	return db.config.VectorStore.Collection
}

// NewUploader returns an uploader over the vector store using the configured batch size.
func (db *Database) NewUploader(opts ...vectorstore.Option) (*vectorstore.Uploader, error) {
	base := []vectorstore.Option{
		vectorstore.WithBatchSize(db.config.Pipeline.UploadBatchSize),
		vectorstore.WithLogger(db.logger),
	}
	return vectorstore.NewUploader(db.vectors, append(base, opts...)...)
}

// EmbeddingOptions translates the pipeline settings into embedding service options.
func (db *Database) EmbeddingOptions() []embedding.Option {
	p := db.config.Pipeline
	return []embedding.Option{
		embedding.WithDimension(db.config.AI.Dimension),
		embedding.WithSubBatchSize(p.SubBatchSize),
		embedding.WithConcurrency(p.Concurrency),
		embedding.WithPaceDelay(p.PaceDelay),
		embedding.WithMaxTextLength(p.MaxTextLength),
		embedding.WithNormalize(p.Normalize),
		embedding.WithLogger(db.logger),
	}
}

// NewEmbeddingService returns an embedding service over the provider's embedder.
func (db *Database) NewEmbeddingService(opts ...embedding.Option) (*embedding.Service, error) {
	return embedding.NewService(db.provider.Embedder(), append(db.EmbeddingOptions(), opts...)...)
}

// NewOrchestrator returns an orchestrator configured from the pipeline settings.
// opts are applied last.
func (db *Database) NewOrchestrator(opts ...ingestion.Option) (*ingestion.Orchestrator, error) {
	uploader, err := db.NewUploader()
	if err != nil {
		return nil, err
	}
	p := db.config.Pipeline
	base := []ingestion.Option{
		ingestion.WithCollection(db.Collection()),
		ingestion.WithMaxRetries(p.MaxRetries),
		ingestion.WithTaggingTimeout(p.TaggingTimeout),
		ingestion.WithStaleAfter(p.StaleAfter),
		ingestion.WithEmbeddingOptions(db.EmbeddingOptions()...),
		ingestion.WithLogger(db.logger),
	}
	if p.PoolSize > 0 {
		base = append(base, ingestion.WithPoolSize(p.PoolSize))
	}
	if db.config.AI.MaxTags > 0 {
		base = append(base, ingestion.WithMaxTags(db.config.AI.MaxTags))
	}
	if db.crawler != nil {
		base = append(base, ingestion.WithCrawler(db.crawler))
	}
	return ingestion.NewOrchestrator(db.records, db.blobs, db.provider, uploader, append(base, opts...)...)
}

// NewSearcher returns a searcher over the vector store.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	embedder, err := db.NewEmbeddingService()
	if err != nil {
		return nil, err
	}
	uploader, err := db.NewUploader()
	if err != nil {
		return nil, err
	}
	return search.NewSearcher(embedder, uploader, append([]search.Option{search.WithLogger(db.logger)}, opts...)...)
}

// NewChat returns a question answering service over the configured collection.
func (db *Database) NewChat(opts ...chat.Option) (*chat.Service, error) {
	searcher, err := db.NewSearcher()
	if err != nil {
		return nil, err
	}
	return chat.NewService(searcher, db.provider.Chatter(), append([]chat.Option{chat.WithLogger(db.logger)}, opts...)...)
}

// NewReembedder returns a reembedder writing progress to progress.
// An empty collection in cfg falls back to the configured one.
func (db *Database) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if cfg == nil {
		cfg = reembed.DefaultConfig()
		cfg.Collection = db.Collection()
	}
	if cfg.Collection == "" {
		c := *cfg
		c.Collection = db.Collection()
		cfg = &c
	}
	embedder, err := db.NewEmbeddingService()
	if err != nil {
		return nil, err
	}
	uploader, err := db.NewUploader()
	if err != nil {
		return nil, err
	}
	return reembed.NewReembedder(db.records, db.checkpoints, embedder, uploader, cfg, progress)
}
