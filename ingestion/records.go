package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage"
)

// BulkResult reports the independent outcome of each member of a bulk operation.
type BulkResult struct {
	Succeeded []core.ID
	Failed    map[core.ID]error
}

// Err joins the member failures, or returns nil when every member succeeded.
func (r BulkResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("record %d: %w", id, err))
	}
	return errors.Join(errs...)
}

// Retry resets a failed record to pending and processes it again.
// Only failed records can be retried, and at most MaxRetries times.
func (o *Orchestrator) Retry(ctx context.Context, id core.ID) error {
	if err := o.requeue(ctx, id); err != nil {
		return err
	}
	return o.Process(ctx, id)
}

// requeue moves a failed record back to pending, counting the retry in the same update.
func (o *Orchestrator) requeue(ctx context.Context, id core.ID) error {
	record, err := o.records.UpdateRecord(ctx, id, func(r *core.IngestionRecord) error {
		if r.Status != core.StatusFailed {
			return fmt.Errorf("%w: record %d is %s", core.ErrNotRetryable, id, r.Status)
		}
		if o.maxRetries > 0 && r.RetryCount >= o.maxRetries {
			return fmt.Errorf("%w: record %d retried %d times", core.ErrRetryLimitExceeded, id, r.RetryCount)
		}
		r.Status = core.StatusPending
		r.ExtractionStatus = core.ExtractionStatusPending
		r.RetryCount++
		r.ErrorMessage = ""
		r.TaggingOutcome = core.TaggingOutcomeNone
		return nil
	})
	if err != nil {
		return err
	}
	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		entry.Status = core.ExtractionStatusPending
		entry.Progress = 0
		entry.ErrorMessage = ""
	})
	o.logger.Info("record requeued", "record", id, "retry", record.RetryCount)
	return nil
}

// BulkRetry retries each record independently.
func (o *Orchestrator) BulkRetry(ctx context.Context, ids []core.ID) (BulkResult, error) {
	return o.bulk(ctx, ids, o.Retry)
}

// BulkDelete deletes each record independently.
func (o *Orchestrator) BulkDelete(ctx context.Context, ids []core.ID) (BulkResult, error) {
	return o.bulk(ctx, ids, o.Delete)
}

// bulk applies fn to every id, honoring pause between members.
// Once ctx is done the remaining members fail with its cause.
func (o *Orchestrator) bulk(ctx context.Context, ids []core.ID, fn func(context.Context, core.ID) error) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, core.ValidationError("no record ids given")
	}
	result := BulkResult{Failed: make(map[core.ID]error)}
	for _, id := range ids {
		if err := o.gate.Wait(ctx); err != nil {
			result.Failed[id] = err
			continue
		}
		if err := fn(ctx, id); err != nil {
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// Delete removes a record with its tags and queue entry.
// The raw bytes and the uploaded vector object are removed afterwards on a best-effort basis,
// so a failed delete never leaves a record pointing at a missing blob.
func (o *Orchestrator) Delete(ctx context.Context, id core.ID) error {
	record, err := o.records.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := o.records.DeleteRecord(ctx, id); err != nil {
		return err
	}
	if record.BlobPath != "" {
		if err := o.blobs.Delete(ctx, record.BlobPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn("orphaned blob", "record", id, "blob", record.BlobPath, "err", err)
		}
	}
	if record.VectorObjectID != "" {
		if err := o.uploader.Delete(ctx, o.collection, record.VectorObjectID); err != nil {
			o.logger.Warn("vector object not deleted", "record", id, "object", record.VectorObjectID, "err", err)
		}
	}
	o.logger.Info("record deleted", "record", id)
	return nil
}

// Record returns a record with its smart tags.
func (o *Orchestrator) Record(ctx context.Context, id core.ID) (*core.IngestionRecord, error) {
	return o.records.GetRecord(ctx, id)
}

// QueueEntry returns the extraction progress of a record.
func (o *Orchestrator) QueueEntry(ctx context.Context, id core.ID) (*core.ExtractionQueueEntry, error) {
	return o.records.GetQueueEntry(ctx, id)
}

// ListRecords returns records matching filter and the total number of matches.
func (o *Orchestrator) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*core.IngestionRecord, int, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, 0, core.ValidationError("offset and limit must not be negative")
	}
	return o.records.ListRecords(ctx, filter)
}

// Stats returns the number of records in each status.
func (o *Orchestrator) Stats(ctx context.Context) (map[core.Status]int, error) {
	return o.records.CountByStatus(ctx)
}
