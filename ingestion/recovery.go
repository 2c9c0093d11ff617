package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage"
)

// DefaultStaleAfter is how long a record may sit in an in-flight stage
// before RecoverInterrupted treats it as abandoned.
const DefaultStaleAfter = 30 * time.Minute

var inFlightStatuses = []core.Status{
	core.StatusExtracting,
	core.StatusTagging,
	core.StatusEmbedding,
	core.StatusUploading,
}

// WithStaleAfter sets how long an in-flight record must be idle before it
// is considered interrupted.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return core.ConfigurationError("stale-after must be positive, got %s", d)
		}
		o.staleAfter = d
		return nil
	}
}

// RecoverInterrupted marks records left in an in-flight stage by a stopped
// process as failed, so they can be retried. Records being processed by
// this orchestrator are skipped. Returns how many records were recovered.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-o.staleAfter)
	recovered := 0
	for _, status := range inFlightStatuses {
		stuck, _, err := o.records.ListRecords(ctx, storage.RecordFilter{Status: status})
		if err != nil {
			return recovered, err
		}
		for _, record := range stuck {
			if err := ctx.Err(); err != nil {
				return recovered, err
			}
			if o.isActive(record.Id) || !staleSince(record, cutoff) {
				continue
			}
			ok, err := o.markInterrupted(ctx, record.Id, cutoff)
			if err != nil {
				return recovered, err
			}
			if ok {
				recovered++
			}
		}
	}
	if recovered > 0 {
		o.logger.Warn("recovered interrupted records", "count", recovered)
	}
	return recovered, nil
}

// markInterrupted fails the record if it is still in flight and stale.
func (o *Orchestrator) markInterrupted(ctx context.Context, id core.ID, cutoff time.Time) (bool, error) {
	var cause error
	_, err := o.records.UpdateRecord(ctx, id, func(r *core.IngestionRecord) error {
		if r.Status.IsTerminal() || r.Status == core.StatusPending || !staleSince(r, cutoff) {
			return errNotInterrupted
		}
		cause = fmt.Errorf("%w: processing stopped during %s", ErrInterrupted, r.Status)
		r.Status = core.StatusFailed
		r.ErrorMessage = cause.Error()
		if r.ExtractionStatus == core.ExtractionStatusProcessing {
			r.ExtractionStatus = core.ExtractionStatusFailed
		}
		return nil
	})
	switch {
	case errors.Is(err, errNotInterrupted), errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		if entry.Status != core.ExtractionStatusProcessing {
			return
		}
		entry.Status = core.ExtractionStatusFailed
		entry.ErrorMessage = cause.Error()
		entry.CompletedAt = time.Now().UTC()
	})
	o.logger.Warn("record interrupted", "record", id, "err", cause)
	return true, nil
}

func (o *Orchestrator) isActive(id core.ID) bool {
	_, ok := o.active.Load(id)
	return ok
}

// staleSince reports whether the record's current attempt began before cutoff.
func staleSince(r *core.IngestionRecord, cutoff time.Time) bool {
	started := r.ProcessingStartedAt
	if started.IsZero() {
		started = r.UpdatedAt
	}
	return started.Before(cutoff)
}
