package storage

import (
	"context"

	"github.com/poiesic/enrich/core"
)

// RecordFilter narrows ListRecords results.
// Zero values disable the corresponding filter.
type RecordFilter struct {
	Status  core.Status
	Owner   core.Actor // nil matches every owner
	Search  string     // case-insensitive substring of DeclaredName, Title or SourceLocator
	AfterID core.ID    // only records with a larger ID
	Offset  int
	Limit   int
}

// IngestionRecordStore persists ingestion records with their smart tags and extraction queue entries.
// Implementations must be thread-safe and support concurrent access.
// Updates are per record; no cross-record locking is provided.
type IngestionRecordStore interface {
	// CreateRecord validates and stores a new record in pending state.
	// Assigns the ID from a sequence and sets CreatedAt/UpdatedAt.
	// A pending ExtractionQueueEntry is created alongside the record.
	// Returns the record with ID and timestamps populated.
	CreateRecord(ctx context.Context, record *core.IngestionRecord) (*core.IngestionRecord, error)

	// GetRecord retrieves a record by ID, including its smart tags.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.IngestionRecord, error)

	// UpdateRecord atomically applies fn to the stored record and persists the result.
	// If fn returns an error nothing is written and the error is returned unchanged.
	// UpdatedAt is set automatically. SmartTags on the passed record are ignored;
	// use ReplaceSmartTags.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateRecord(ctx context.Context, id core.ID, fn func(record *core.IngestionRecord) error) (*core.IngestionRecord, error)

	// DeleteRecord removes a record together with its smart tags and queue entry.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteRecord(ctx context.Context, id core.ID) error

	// ListRecords returns records matching filter ordered by ID ascending,
	// plus the total number of matches before Offset/Limit are applied.
	ListRecords(ctx context.Context, filter RecordFilter) ([]*core.IngestionRecord, int, error)

	// CountByStatus returns the number of records in each status.
	CountByStatus(ctx context.Context) (map[core.Status]int, error)

	// ReplaceSmartTags atomically replaces every tag of a record with tags.
	// Returns ErrNotFound if the record doesn't exist.
	ReplaceSmartTags(ctx context.Context, id core.ID, tags []core.SmartTag) error

	// GetSmartTags returns the tags of a record in stored order.
	GetSmartTags(ctx context.Context, id core.ID) ([]core.SmartTag, error)

	// GetQueueEntry retrieves the extraction queue entry of a record.
	// Returns ErrNotFound if none exists.
	GetQueueEntry(ctx context.Context, recordID core.ID) (*core.ExtractionQueueEntry, error)

	// UpdateQueueEntry atomically applies fn to the queue entry of a record.
	// Progress never decreases while the entry is processing; lower values are ignored.
	// Returns ErrNotFound if none exists.
	UpdateQueueEntry(ctx context.Context, recordID core.ID, fn func(entry *core.ExtractionQueueEntry) error) (*core.ExtractionQueueEntry, error)

	// Close releases resources held by the store.
	Close() error
}

// BlobStore stores raw source bytes under path handles.
type BlobStore interface {
	// Put stores data under path and returns a stable handle for retrieval.
	Put(ctx context.Context, path string, data []byte) (string, error)

	// Get retrieves the bytes stored under handle.
	// Returns ErrNotFound if nothing is stored there.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the bytes stored under handle. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error
}

// CheckpointRepository persists progress markers for resumable batch jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for its processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
