package badger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage"
)

// RecordStore implements storage.IngestionRecordStore for BadgerDB.
//
// Update callbacks may run more than once when a commit loses a conflict;
// each run sees a fresh copy of the stored value.
type RecordStore struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.IngestionRecordStore = (*RecordStore)(nil)

// NewRecordStore creates a new RecordStore.
func NewRecordStore(backend *Backend) (*RecordStore, error) {
	idSeq, err := backend.GetSequence(recordIDSeq)
	if err != nil {
		return nil, err
	}

	return &RecordStore{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RecordStore) Close() error {
	return r.idSeq.Release()
}

func (r *RecordStore) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// CreateRecord stores a new record in pending state with a pending queue entry.
func (r *RecordStore) CreateRecord(ctx context.Context, record *core.IngestionRecord) (*core.IngestionRecord, error) {
	if err := core.ValidateRecord(record); err != nil {
		return nil, err
	}
	id, err := r.nextID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record.Id = id
	if record.Owner == nil {
		record.Owner = core.Anonymous{}
	}
	record.Status = core.StatusPending
	record.ExtractionStatus = core.ExtractionStatusPending
	record.CreatedAt = now
	record.UpdatedAt = now

	entry := &core.ExtractionQueueEntry{
		Id:        uuid.NewString(),
		RecordId:  id,
		Status:    core.ExtractionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = r.backend.Update(func(tx *badger.Txn) error {
		if err := tx.Set(makeRecordKey(id), storage.MarshalRecord(record)); err != nil {
			return err
		}
		if len(record.SmartTags) > 0 {
			if err := tx.Set(makeRecordTagsKey(id), storage.MarshalSmartTags(record.SmartTags)); err != nil {
				return err
			}
		}
		return tx.Set(makeQueueKey(id), storage.MarshalQueueEntry(entry))
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord retrieves a record by ID, including its smart tags.
func (r *RecordStore) GetRecord(ctx context.Context, id core.ID) (*core.IngestionRecord, error) {
	var result *core.IngestionRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		result.SmartTags, err = readSmartTags(tx, id)
		return err
	}, false)
	return result, err
}

// UpdateRecord atomically applies fn to the stored record.
func (r *RecordStore) UpdateRecord(ctx context.Context, id core.ID, fn func(record *core.IngestionRecord) error) (*core.IngestionRecord, error) {
	var result *core.IngestionRecord
	err := r.backend.Update(func(tx *badger.Txn) error {
		record, err := readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		createdAt := record.CreatedAt
		if err := fn(record); err != nil {
			return err
		}
		record.Id = id
		record.CreatedAt = createdAt
		record.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeRecordKey(id), storage.MarshalRecord(record)); err != nil {
			return err
		}
		record.SmartTags, err = readSmartTags(tx, id)
		result = record
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteRecord removes a record together with its smart tags and queue entry.
func (r *RecordStore) DeleteRecord(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		record, err := readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		for _, key := range [][]byte{makeRecordTagsKey(id), makeQueueKey(id), makeRecordKey(id)} {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRecords returns records matching filter ordered by ID ascending.
func (r *RecordStore) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*core.IngestionRecord, int, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, 0, storage.ErrInvalidQuery
	}
	search := strings.ToLower(filter.Search)

	var results []*core.IngestionRecord
	total := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		err := iteratePrefix(tx, []byte(recordPrefix), false, func(item *badger.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.IngestionRecord
			if err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			}); err != nil {
				return err
			}
			if !matchesFilter(record, filter, search) {
				return nil
			}
			total++
			if total <= filter.Offset {
				return nil
			}
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
			results = append(results, record)
			return nil
		})
		if err != nil {
			return err
		}
		for _, record := range results {
			if record.SmartTags, err = readSmartTags(tx, record.Id); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func matchesFilter(record *core.IngestionRecord, filter storage.RecordFilter, search string) bool {
	if filter.Status != 0 && record.Status != filter.Status {
		return false
	}
	if record.Id <= filter.AfterID {
		return false
	}
	if filter.Owner != nil && !core.SameActor(filter.Owner, record.Owner) {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(record.DeclaredName), search) ||
		strings.Contains(strings.ToLower(record.Title), search) ||
		strings.Contains(strings.ToLower(record.SourceLocator), search)
}

// CountByStatus returns the number of records in each status.
// Every status is present in the result, with zero when unused.
func (r *RecordStore) CountByStatus(ctx context.Context) (map[core.Status]int, error) {
	counts := make(map[core.Status]int, len(core.Statuses))
	for _, s := range core.Statuses {
		counts[s] = 0
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(tx, []byte(recordPrefix), false, func(item *badger.Item) error {
			return item.Value(func(val []byte) error {
				record, err := storage.UnmarshalRecord(val)
				if err != nil {
					return err
				}
				counts[record.Status]++
				return nil
			})
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ReplaceSmartTags atomically replaces every tag of a record.
func (r *RecordStore) ReplaceSmartTags(ctx context.Context, id core.ID, tags []core.SmartTag) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		record, err := readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if len(tags) == 0 {
			return tx.Delete(makeRecordTagsKey(id))
		}
		return tx.Set(makeRecordTagsKey(id), storage.MarshalSmartTags(tags))
	})
}

// GetSmartTags returns the tags of a record in stored order.
func (r *RecordStore) GetSmartTags(ctx context.Context, id core.ID) ([]core.SmartTag, error) {
	var tags []core.SmartTag
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeRecordKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var err error
		tags, err = readSmartTags(tx, id)
		return err
	}, false)
	return tags, err
}

// GetQueueEntry retrieves the extraction queue entry of a record.
func (r *RecordStore) GetQueueEntry(ctx context.Context, recordID core.ID) (*core.ExtractionQueueEntry, error) {
	var entry *core.ExtractionQueueEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entry, err = readQueueEntry(tx, recordID)
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return entry, err
}

// UpdateQueueEntry atomically applies fn to the queue entry of a record.
func (r *RecordStore) UpdateQueueEntry(ctx context.Context, recordID core.ID, fn func(entry *core.ExtractionQueueEntry) error) (*core.ExtractionQueueEntry, error) {
	var result *core.ExtractionQueueEntry
	err := r.backend.Update(func(tx *badger.Txn) error {
		entry, err := readQueueEntry(tx, recordID)
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.ErrNotFound
		}
		oldStatus, oldProgress := entry.Status, entry.Progress
		if err := fn(entry); err != nil {
			return err
		}
		if oldStatus == core.ExtractionStatusProcessing && entry.Status == core.ExtractionStatusProcessing && entry.Progress < oldProgress {
			entry.Progress = oldProgress
		}
		entry.RecordId = recordID
		entry.UpdatedAt = time.Now().UTC()
		result = entry
		return tx.Set(makeQueueKey(recordID), storage.MarshalQueueEntry(entry))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Helper methods

// readRecord reads a record from the transaction. Returns nil, nil if absent.
func readRecord(tx *badger.Txn, id core.ID) (*core.IngestionRecord, error) {
	item, err := tx.Get(makeRecordKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.IngestionRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}

// readSmartTags reads the tag set of a record. Returns nil if none is stored.
func readSmartTags(tx *badger.Txn, id core.ID) ([]core.SmartTag, error) {
	item, err := tx.Get(makeRecordTagsKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var tags []core.SmartTag
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		tags, unmarshalErr = storage.UnmarshalSmartTags(val)
		return unmarshalErr
	})
	return tags, err
}

// readQueueEntry reads a queue entry. Returns nil, nil if absent.
func readQueueEntry(tx *badger.Txn, id core.ID) (*core.ExtractionQueueEntry, error) {
	item, err := tx.Get(makeQueueKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.ExtractionQueueEntry
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		entry, unmarshalErr = storage.UnmarshalQueueEntry(val)
		return unmarshalErr
	})
	return entry, err
}
