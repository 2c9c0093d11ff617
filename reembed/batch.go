package reembed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/vectorstore"
)

// BatchResult tallies one processed batch.
type BatchResult struct {
	Reembedded int
	Skipped    int
	Failed     []core.ID
}

// BatchProcessor re-embeds a batch of records, uploads the new vectors and
// stores them on the records.
type BatchProcessor struct {
	records        storage.IngestionRecordStore
	embedder       *embedding.Service
	uploader       *vectorstore.Uploader
	collection     string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(records storage.IngestionRecordStore, embedder *embedding.Service, uploader *vectorstore.Uploader, collection string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		records:        records,
		embedder:       embedder,
		uploader:       uploader,
		collection:     collection,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds records. Records without text are skipped and records
// whose embedding still fails after retries are reported in Failed. An upload
// or store failure aborts the batch.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.IngestionRecord) (BatchResult, error) {
	var result BatchResult

	var todo []*core.IngestionRecord
	var texts []string
	for _, record := range records {
		if strings.TrimSpace(record.ContentText) == "" {
			result.Skipped++
			continue
		}
		todo = append(todo, record)
		texts = append(texts, bp.embedder.Truncate(record.ContentText))
	}
	if len(todo) == 0 {
		return result, nil
	}

	vectors, err := bp.embed(ctx, texts)
	if err != nil {
		return result, err
	}

	objects := make([]vectorstore.Object, 0, len(todo))
	embedded := make([]*core.IngestionRecord, 0, len(todo))
	for i, record := range todo {
		if vectors[i] == nil {
			result.Failed = append(result.Failed, record.Id)
			continue
		}
		vector := embedding.Normalize(vectors[i])
		objects = append(objects, vectorstore.RecordObject(record, vector))
		embedded = append(embedded, record)
	}
	if len(objects) == 0 {
		return result, nil
	}

	upload, err := bp.uploader.Upload(ctx, bp.collection, objects)
	if err != nil {
		return result, fmt.Errorf("failed to upload vectors: %w", err)
	}
	if upload.FailedBatches > 0 {
		return result, fmt.Errorf("%w: %w", ErrUploadIncomplete, upload.Err())
	}

	for i, record := range embedded {
		obj := objects[i]
		_, err := bp.records.UpdateRecord(ctx, record.Id, func(r *core.IngestionRecord) error {
			r.Embedding = obj.Vector
			r.VectorObjectID = obj.ID
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			// deleted during the run
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to update record %d: %w", record.Id, err)
		}
		result.Reembedded++
	}
	return result, nil
}

// embed returns one vector per text, nil where embedding kept failing.
// Only failed items are resubmitted on retry. The error covers batch-level
// failures and cancellation.
func (bp *BatchProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	pending := make([]int, len(texts))
	for i := range pending {
		pending[i] = i
	}

	var fatal error
	_ = RetryWithBackoff(ctx, func() error {
		batch := make([]string, len(pending))
		for i, idx := range pending {
			batch[i] = texts[idx]
		}
		result, err := bp.embedder.EmbedBatch(ctx, batch)
		if err == nil && len(result.Items) != len(batch) {
			err = fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(batch), len(result.Items))
		}
		fatal = err
		if err != nil {
			return err
		}

		var still []int
		for i, item := range result.Items {
			if item.Err != nil {
				still = append(still, pending[i])
				continue
			}
			vectors[pending[i]] = item.Vector
		}
		pending = still
		return result.Err()
	}, bp.maxRetries, bp.retryBaseDelay)

	if fatal != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", fatal)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
