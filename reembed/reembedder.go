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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/embedding"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/vectorstore"
)

// CheckpointName is the processor type under which progress is saved.
const CheckpointName = "reembed"

var (
	// ErrRecordStoreRequired is returned when no record store is provided.
	ErrRecordStoreRequired = errors.New("record store required")
	// ErrCheckpointsRequired is returned when no checkpoint repository is provided.
	ErrCheckpointsRequired = errors.New("checkpoint repository required")
	// ErrEmbedderRequired is returned when no embedding service is provided.
	ErrEmbedderRequired = errors.New("embedding service required")
	// ErrUploaderRequired is returned when no vector uploader is provided.
	ErrUploaderRequired = errors.New("vector uploader required")
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Collection receives the re-uploaded vectors
	Collection string

	// Restart ignores a saved checkpoint and starts from the first record
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Collection:     "documents",
	}
}

func (c *Config) validate() error {
	if c.BatchSize < 1 || c.BatchSize > embedding.DefaultMaxBatchTexts {
		return core.ConfigurationError("batch size must be between 1 and %d, got %d", embedding.DefaultMaxBatchTexts, c.BatchSize)
	}
	if c.MaxRetries < 1 {
		return core.ConfigurationError("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return core.ConfigurationError("retry delay must not be negative")
	}
	if c.Collection == "" {
		return core.ConfigurationError("collection is required")
	}
	return nil
}

// Result summarizes a run.
type Result struct {
	Reembedded int
	Skipped    int
	Failed     []core.ID
	Resumed    bool
}

// Reembedder re-embeds every completed ingestion record with the configured embedder.
type Reembedder struct {
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
	processor   *BatchProcessor
	iterator    *RecordIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	records storage.IngestionRecordStore,
	checkpoints storage.CheckpointRepository,
	embedder *embedding.Service,
	uploader *vectorstore.Uploader,
	config *Config,
	progress io.Writer,
) (*Reembedder, error) {
	switch {
	case records == nil:
		return nil, ErrRecordStoreRequired
	case checkpoints == nil:
		return nil, ErrCheckpointsRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	case uploader == nil:
		return nil, ErrUploaderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		logger:      slog.Default().With("component", "reembedder"),
		processor:   NewBatchProcessor(records, embedder, uploader, config.Collection, config.MaxRetries, config.RetryDelay),
		iterator:    NewRecordIterator(records, config.BatchSize),
	}, nil
}

// Run re-embeds completed records, resuming after the saved checkpoint.
// The checkpoint advances after every batch and is cleared once every record
// is done. On error the checkpoint is left at the last finished batch.
func (r *Reembedder) Run(ctx context.Context) (Result, error) {
	var result Result

	var afterID core.ID
	if r.config.Restart {
		if err := r.checkpoints.ClearCheckpoint(ctx, CheckpointName); err != nil {
			return result, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	} else {
		cp, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName)
		if err != nil {
			return result, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp != nil {
			afterID = cp.LastID
			result.Resumed = true
		}
	}

	total, err := r.iterator.Remaining(ctx, afterID)
	if err != nil {
		return result, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No completed records to reembed (0 records)\n")
		return result, r.checkpoints.ClearCheckpoint(ctx, CheckpointName)
	}

	if result.Resumed {
		fmt.Fprintf(r.progress, "Resuming after record %d\n", afterID)
	}
	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, afterID, func(records []*core.IngestionRecord) error {
		batch, err := r.processor.Process(ctx, records)
		result.Reembedded += batch.Reembedded
		result.Skipped += batch.Skipped
		result.Failed = append(result.Failed, batch.Failed...)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		for _, id := range batch.Failed {
			r.logger.Warn("embedding failed after retries", "record", id)
		}

		last := records[len(records)-1].Id
		if err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
			ProcessorType: CheckpointName,
			LastID:        last,
			UpdatedAt:     time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		processed += len(records)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return result, err
	}

	tracker.Finish()
	if err := r.checkpoints.ClearCheckpoint(ctx, CheckpointName); err != nil {
		return result, fmt.Errorf("failed to clear checkpoint: %w", err)
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Reembedded %d records in %v (%d skipped, %d failed)\n",
		result.Reembedded, elapsed.Round(time.Millisecond), result.Skipped, len(result.Failed))

	return result, nil
}
