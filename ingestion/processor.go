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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/extract"
	"github.com/poiesic/enrich/tagging"
	"github.com/poiesic/enrich/vectorstore"
)

// Stage names used in failure messages.
const (
	stageExtraction = "extraction"
	stageEmbedding  = "embedding"
	stageUpload     = "upload"
)

// Process runs one pending record through the pipeline to completed or failed.
// A returned error means the record did not complete; unless the record was not
// pending to begin with, it has been marked failed with the error message.
func (o *Orchestrator) Process(ctx context.Context, id core.ID) error {
	logger := o.logger.With("record", id)
	o.active.Store(id, struct{}{})
	defer o.active.Delete(id)

	record, err := o.transition(ctx, id, core.StatusExtracting, func(r *core.IngestionRecord) {
		r.ExtractionStatus = core.ExtractionStatusProcessing
		r.ErrorMessage = ""
		r.ProcessingStartedAt = time.Now().UTC()
		r.ProcessingCompletedAt = time.Time{}
	})
	if err != nil {
		return err
	}
	logger.Debug("processing record", "name", record.DeclaredName, "mime", record.MimeType)
	o.startQueueEntry(ctx, id)

	// extraction
	data, err := o.blobs.Get(ctx, record.BlobPath)
	if err != nil {
		return o.fail(ctx, id, stageExtraction, err)
	}
	result := o.extractor.Extract(ctx, data, record.MimeType, record.DeclaredName, func(percent int) {
		o.reportProgress(ctx, id, percent)
	})
	record, err = o.records.UpdateRecord(ctx, id, func(r *core.IngestionRecord) error {
		r.ContentText = result.Text
		content := result.Content
		r.ExtractedContent = &content
		r.ExtractionStatus = core.ExtractionStatusCompleted
		if r.Title == "" {
			r.Title = result.Title
		}
		return nil
	})
	if err != nil {
		return o.fail(ctx, id, stageExtraction, err)
	}
	o.completeQueueEntry(ctx, id)

	tagged := o.startTagging(ctx, id, tagging.Input{
		Content: record.ContentText,
		Title:   record.Title,
		Locator: record.SourceLocator,
	})
	// once the attempt fails, background tagging stores nothing more
	fail := func(stage string, err error) error {
		tagged.abort()
		return o.fail(ctx, id, stage, err)
	}

	// embedding
	if _, err := o.transition(ctx, id, core.StatusEmbedding, nil); err != nil {
		return fail(stageEmbedding, err)
	}
	vector, err := o.embedder.Embed(ctx, o.embedder.Truncate(record.ContentText))
	if err != nil {
		return fail(stageEmbedding, err)
	}

	// upload
	objectID := vectorstore.ObjectID(id)
	if _, err := o.transition(ctx, id, core.StatusUploading, func(r *core.IngestionRecord) {
		r.Embedding = vector
	}); err != nil {
		return fail(stageUpload, err)
	}
	upload, err := o.uploader.Upload(ctx, o.collection, []vectorstore.Object{vectorstore.RecordObject(record, vector)})
	if err == nil && upload.Uploaded == 0 {
		err = ErrUploadFailed
		if batchErr := upload.Err(); batchErr != nil {
			err = fmt.Errorf("%w: %w", ErrUploadFailed, batchErr)
		}
	}
	if err != nil {
		return fail(stageUpload, err)
	}

	outcome := o.awaitTagging(ctx, logger, tagged)
	_, err = o.transition(ctx, id, core.StatusCompleted, func(r *core.IngestionRecord) {
		r.VectorObjectID = objectID
		r.TaggingOutcome = outcome
		r.ProcessingCompletedAt = time.Now().UTC()
	})
	if err != nil {
		return fail(stageUpload, err)
	}
	logger.Info("record completed", "object", objectID, "tagging", outcome)
	return nil
}

// transition moves a record to next if the state machine allows it, applying mutate in the same update.
func (o *Orchestrator) transition(ctx context.Context, id core.ID, next core.Status, mutate func(*core.IngestionRecord)) (*core.IngestionRecord, error) {
	return o.records.UpdateRecord(ctx, id, func(r *core.IngestionRecord) error {
		if err := core.ValidateTransition(r.Status, next); err != nil {
			return fmt.Errorf("record %d: %w", id, err)
		}
		r.Status = next
		if mutate != nil {
			mutate(r)
		}
		return nil
	})
}

// fail marks a record failed and returns err annotated with the stage.
// The failure is written even if ctx was canceled.
func (o *Orchestrator) fail(ctx context.Context, id core.ID, stage string, err error) error {
	err = fmt.Errorf("%s: %w", stage, err)
	ctx = context.WithoutCancel(ctx)

	_, updateErr := o.records.UpdateRecord(ctx, id, func(r *core.IngestionRecord) error {
		if r.Status.IsTerminal() {
			return fmt.Errorf("record %d: %w", id, core.ValidateTransition(r.Status, core.StatusFailed))
		}
		r.Status = core.StatusFailed
		r.ErrorMessage = err.Error()
		if r.ExtractionStatus == core.ExtractionStatusProcessing {
			r.ExtractionStatus = core.ExtractionStatusFailed
		}
		return nil
	})
	if updateErr != nil {
		o.logger.Error("failed to mark record failed", "record", id, "err", updateErr)
	}
	if stage == stageExtraction {
		o.failQueueEntry(ctx, id, err)
	}
	o.logger.Warn("record failed", "record", id, "stage", stage, "err", err)
	return err
}

// taggingRun is background tagging for one processing attempt.
type taggingRun struct {
	done   chan core.TaggingOutcome
	cancel context.CancelFunc

	mu      sync.Mutex
	aborted bool
}

// abort stops the run. Once abort returns the run stores no tags; a store already
// in progress finishes first. Aborting a finished run is a no-op.
func (r *taggingRun) abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
	r.cancel()
}

// startTagging tags in the background, bounded by the tagging timeout.
// Tags are stored only while the run has not been aborted.
func (o *Orchestrator) startTagging(ctx context.Context, id core.ID, in tagging.Input) *taggingRun {
	tagCtx, cancel := context.WithTimeout(ctx, o.taggingTimeout)
	run := &taggingRun{done: make(chan core.TaggingOutcome, 1), cancel: cancel}
	go func() {
		defer cancel()
		outcome := o.tagger.Generate(tagCtx, in)

		run.mu.Lock()
		defer run.mu.Unlock()
		if run.aborted {
			o.logger.Debug("tagging abandoned", "record", id)
			run.done <- core.TaggingOutcomeNone
			return
		}
		stored, err := o.tagger.Store(context.WithoutCancel(tagCtx), id, outcome)
		if err != nil {
			o.logger.Error("error storing tags", "record", id, "err", err)
		}
		run.done <- stored.Result
	}()
	return run
}

// awaitTagging waits for background tagging. A timeout leaves the outcome unset.
func (o *Orchestrator) awaitTagging(ctx context.Context, logger *slog.Logger, run *taggingRun) core.TaggingOutcome {
	timer := time.NewTimer(o.taggingTimeout)
	defer timer.Stop()
	select {
	case outcome := <-run.done:
		return outcome
	case <-timer.C:
		logger.Warn("tagging did not finish in time", "timeout", o.taggingTimeout)
	case <-ctx.Done():
	}
	return core.TaggingOutcomeNone
}

func (o *Orchestrator) startQueueEntry(ctx context.Context, id core.ID) {
	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		entry.Status = core.ExtractionStatusProcessing
		entry.Progress = 0
		entry.ErrorMessage = ""
		entry.StartedAt = time.Now().UTC()
		entry.CompletedAt = time.Time{}
	})
}

func (o *Orchestrator) reportProgress(ctx context.Context, id core.ID, percent int) {
	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		entry.Progress = percent
	})
}

func (o *Orchestrator) completeQueueEntry(ctx context.Context, id core.ID) {
	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		entry.Status = core.ExtractionStatusCompleted
		entry.Progress = extract.ProgressDone
		entry.CompletedAt = time.Now().UTC()
	})
}

func (o *Orchestrator) failQueueEntry(ctx context.Context, id core.ID, err error) {
	o.updateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) {
		entry.Status = core.ExtractionStatusFailed
		entry.ErrorMessage = err.Error()
		entry.CompletedAt = time.Now().UTC()
	})
}

// updateQueueEntry applies fn to the record's queue entry.
// Queue entries only report progress, so failures are logged and ignored.
func (o *Orchestrator) updateQueueEntry(ctx context.Context, id core.ID, fn func(*core.ExtractionQueueEntry)) {
	_, err := o.records.UpdateQueueEntry(ctx, id, func(entry *core.ExtractionQueueEntry) error {
		fn(entry)
		return nil
	})
	if err != nil {
		o.logger.Debug("queue entry not updated", "record", id, "err", err)
	}
}
