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

	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator pages through completed ingestion records in ID order.
type RecordIterator struct {
	records   storage.IngestionRecordStore
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each batch (must be > 0)
func NewRecordIterator(records storage.IngestionRecordStore, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		records:   records,
		batchSize: batchSize,
	}
}

// Remaining counts the completed records with an ID above afterID.
func (it *RecordIterator) Remaining(ctx context.Context, afterID core.ID) (int, error) {
	_, total, err := it.records.ListRecords(ctx, storage.RecordFilter{
		Status:  core.StatusCompleted,
		AfterID: afterID,
		Limit:   1,
	})
	return total, err
}

// ForEach calls fn for each batch of completed records with an ID above afterID.
// Iteration stops on first error from fn or when all records are processed.
// Each page is fetched after the previous batch is handled, so records
// completed during the run are picked up too.
func (it *RecordIterator) ForEach(ctx context.Context, afterID core.ID, fn func([]*core.IngestionRecord) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, _, err := it.records.ListRecords(ctx, storage.RecordFilter{
			Status:  core.StatusCompleted,
			AfterID: afterID,
			Limit:   it.batchSize,
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		afterID = batch[len(batch)-1].Id

		if len(batch) < it.batchSize {
			return nil
		}
	}
}
