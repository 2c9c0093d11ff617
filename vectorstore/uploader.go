package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/poiesic/enrich/core"
)

const (
	// DefaultBatchSize is the number of objects sent per InsertBatch call.
	DefaultBatchSize = 100
)

// UploadResult reports the outcome of an Upload.
// Uploaded never exceeds Requested.
type UploadResult struct {
	Uploaded      int
	Requested     int
	Batches       int
	FailedBatches int
	Errors        []error
}

// Err joins the per-batch errors, or returns nil when every batch succeeded.
func (r UploadResult) Err() error {
	return errors.Join(r.Errors...)
}

// ClearResult reports the outcome of a Clear.
type ClearResult struct {
	DeletedCount int
	TotalObjects int
}

// HealthStats summarizes store contents.
type HealthStats struct {
	Collections  []string
	ObjectCounts map[string]int
	TotalObjects int
}

// HealthStatus is returned by HealthCheck.
type HealthStatus struct {
	Connected bool
	Stats     HealthStats
	Error     string
}

// QueryOptions narrows a Query.
// MaxDistance <= 0 disables the distance cutoff.
type QueryOptions struct {
	Limit       int
	MaxDistance float32
}

// ProgressFunc is called after every batch with the number of objects processed so far.
type ProgressFunc func(processed, total int)

// Uploader pushes embedded objects into a Store in fixed-size batches.
type Uploader struct {
	store     Store
	batchSize int
	progress  ProgressFunc
	logger    *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader) error

// WithBatchSize sets the number of objects per InsertBatch call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(u *Uploader) error {
		if size < 1 {
			return core.ConfigurationError("batch size must be positive, got %d", size)
		}
		u.batchSize = size
		return nil
	}
}

// WithProgress registers a callback invoked after each batch.
func WithProgress(fn ProgressFunc) Option {
	return func(u *Uploader) error {
		u.progress = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) error {
		if logger == nil {
			logger = slog.Default()
		}
		u.logger = logger
		return nil
	}
}

// NewUploader creates an Uploader for store.
func NewUploader(store Store, opts ...Option) (*Uploader, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	u := &Uploader{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}
	u.logger = u.logger.With("component", "vector-uploader")
	return u, nil
}

// Store returns the underlying vector store.
func (u *Uploader) Store() Store {
	return u.store
}

// Upload ensures collection exists and inserts objects in batches.
// A failed batch is recorded in the result and later batches still run.
// The returned error is non-nil only for input validation or collection setup failures.
func (u *Uploader) Upload(ctx context.Context, collection string, objects []Object) (UploadResult, error) {
	result := UploadResult{Requested: len(objects)}
	if collection == "" {
		return result, core.ValidationError("collection name is required")
	}
	dimension, err := validateObjects(objects)
	if err != nil {
		return result, err
	}
	if len(objects) == 0 {
		return result, nil
	}

	if err := u.store.EnsureCollection(ctx, collection, dimension); err != nil && !errors.Is(err, ErrCollectionExists) {
		return result, core.ExternalServiceError("vector store", fmt.Errorf("ensure collection %s: %w", collection, err))
	}

	result.Batches = int(math.Ceil(float64(len(objects)) / float64(u.batchSize)))
	for start := 0; start < len(objects); start += u.batchSize {
		end := min(start+u.batchSize, len(objects))
		batch := objects[start:end]

		inserted, err := u.store.InsertBatch(ctx, collection, batch)
		if err != nil {
			result.FailedBatches++
			result.Errors = append(result.Errors, fmt.Errorf("batch %d-%d: %w", start, end, err))
			u.logger.Error("batch insert failed", "collection", collection, "start", start, "end", end, "err", err)
		} else {
			result.Uploaded += min(max(inserted, 0), len(batch))
		}
		if u.progress != nil {
			u.progress(end, len(objects))
		}
		if ctx.Err() != nil && end < len(objects) {
			result.FailedBatches += result.Batches - (start/u.batchSize + 1)
			result.Errors = append(result.Errors, ctx.Err())
			break
		}
	}

	u.logger.Info("upload finished", "collection", collection, "uploaded", result.Uploaded,
		"requested", result.Requested, "batches", result.Batches, "failed_batches", result.FailedBatches)
	return result, nil
}

// validateObjects returns the shared vector dimension of objects.
func validateObjects(objects []Object) (int, error) {
	dimension := 0
	for i, obj := range objects {
		if len(obj.Vector) == 0 {
			return 0, core.ValidationError("object %d has an empty vector", i)
		}
		if dimension == 0 {
			dimension = len(obj.Vector)
			continue
		}
		if len(obj.Vector) != dimension {
			return 0, core.ValidationError("object %d: dimension mismatch: got %d, want %d", i, len(obj.Vector), dimension)
		}
	}
	return dimension, nil
}

// Clear deletes every object in collection. Per-object failures are logged and skipped.
func (u *Uploader) Clear(ctx context.Context, collection string) (ClearResult, error) {
	if collection == "" {
		return ClearResult{}, core.ValidationError("collection name is required")
	}
	ids, err := u.store.ListObjectIDs(ctx, collection)
	if err != nil {
		return ClearResult{}, core.ExternalServiceError("vector store", err)
	}

	result := ClearResult{TotalObjects: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := u.store.DeleteObject(ctx, collection, id); err != nil {
			u.logger.Warn("failed to delete object", "collection", collection, "id", id, "err", err)
			continue
		}
		result.DeletedCount++
	}
	u.logger.Info("collection cleared", "collection", collection, "deleted", result.DeletedCount, "total", result.TotalObjects)
	return result, nil
}

// HealthCheck reports reachability and per-collection counts. It never returns an error.
func (u *Uploader) HealthCheck(ctx context.Context) HealthStatus {
	if err := u.store.Ping(ctx); err != nil {
		return HealthStatus{Error: err.Error()}
	}
	stats, err := u.store.Stats(ctx)
	if err != nil {
		return HealthStatus{Connected: true, Error: err.Error()}
	}
	status := HealthStatus{
		Connected: true,
		Stats:     HealthStats{ObjectCounts: make(map[string]int, len(stats))},
	}
	for _, s := range stats {
		status.Stats.Collections = append(status.Stats.Collections, s.Name)
		status.Stats.ObjectCounts[s.Name] = s.ObjectCount
		status.Stats.TotalObjects += s.ObjectCount
	}
	return status
}

// Query finds objects near vector. Matches farther than MaxDistance are dropped.
func (u *Uploader) Query(ctx context.Context, collection string, vector []float32, opts QueryOptions) ([]Match, error) {
	if collection == "" {
		return nil, core.ValidationError("collection name is required")
	}
	if len(vector) == 0 {
		return nil, core.ValidationError("query vector is empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	matches, err := u.store.Query(ctx, collection, vector, limit)
	if err != nil {
		return nil, core.ExternalServiceError("vector store", err)
	}
	if opts.MaxDistance <= 0 {
		return matches, nil
	}
	filtered := matches[:0]
	for _, m := range matches {
		if m.Distance <= opts.MaxDistance {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Delete removes a single object from collection.
func (u *Uploader) Delete(ctx context.Context, collection, id string) error {
	if err := u.store.DeleteObject(ctx, collection, id); err != nil {
		return core.ExternalServiceError("vector store", err)
	}
	return nil
}
