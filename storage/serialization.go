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


package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/enrich/core"
)

// encodingVersion prefixes every encoded value so the layout can evolve.
const encodingVersion = 1

func checkVersion(r *reader) error {
	v := r.int()
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	if v != encodingVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return nil
}

func finish(r *reader) error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return encode(func(w *writer) { w.uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	r := &reader{bs: data}
	id := core.ID(r.uint64())
	return id, finish(r)
}

// MarshalRecord serializes an IngestionRecord to bytes.
// SmartTags are stored separately and are not included.
func MarshalRecord(record *core.IngestionRecord) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.uint64(uint64(record.Id))
		if record.Owner == nil || core.IsAnonymous(record.Owner) {
			w.string("")
		} else {
			w.string(record.Owner.OwnerID())
		}
		w.int(int(record.SourceKind))
		w.string(record.SourceLocator)
		w.string(record.BlobPath)
		w.string(record.MimeType)
		w.string(record.DeclaredName)
		w.string(record.Title)
		w.int64(record.ByteSize)
		w.int(int(record.Status))
		w.int(int(record.ExtractionStatus))
		w.string(record.ContentText)
		writeExtractedContent(w, record.ExtractedContent)
		w.vector(record.Embedding)
		w.int(int(record.TaggingOutcome))
		w.string(record.VectorObjectID)
		w.string(record.ErrorMessage)
		w.int(record.RetryCount)
		w.time(record.CreatedAt)
		w.time(record.UpdatedAt)
		w.time(record.ProcessingStartedAt)
		w.time(record.ProcessingCompletedAt)
	})
}

// UnmarshalRecord deserializes an IngestionRecord from bytes.
func UnmarshalRecord(data []byte) (*core.IngestionRecord, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	record := &core.IngestionRecord{}
	record.Id = core.ID(r.uint64())
	record.Owner = core.ActorFromID(r.string())
	record.SourceKind = core.SourceKind(r.int())
	record.SourceLocator = r.string()
	record.BlobPath = r.string()
	record.MimeType = r.string()
	record.DeclaredName = r.string()
	record.Title = r.string()
	record.ByteSize = r.int64()
	record.Status = core.Status(r.int())
	record.ExtractionStatus = core.ExtractionStatus(r.int())
	record.ContentText = r.string()
	record.ExtractedContent = readExtractedContent(r)
	record.Embedding = r.vector()
	record.TaggingOutcome = core.TaggingOutcome(r.int())
	record.VectorObjectID = r.string()
	record.ErrorMessage = r.string()
	record.RetryCount = r.int()
	record.CreatedAt = r.time()
	record.UpdatedAt = r.time()
	record.ProcessingStartedAt = r.time()
	record.ProcessingCompletedAt = r.time()
	if err := finish(r); err != nil {
		return nil, err
	}
	return record, nil
}

func writeExtractedContent(w *writer, c *core.ExtractedContent) {
	w.bool(c != nil)
	if c == nil {
		return
	}
	w.int(int(c.Kind))
	w.string(c.Encoding)
	w.int(c.LineCount)
	w.int(c.CharCount)
	w.string(c.FormatError)
	w.int(c.KeyCount)
	w.string(c.Format)
	w.int64(c.Size)
	w.string(c.Note)
	w.string(c.FileName)
}

func readExtractedContent(r *reader) *core.ExtractedContent {
	if !r.bool() {
		return nil
	}
	return &core.ExtractedContent{
		Kind:        core.ContentKind(r.int()),
		Encoding:    r.string(),
		LineCount:   r.int(),
		CharCount:   r.int(),
		FormatError: r.string(),
		KeyCount:    r.int(),
		Format:      r.string(),
		Size:        r.int64(),
		Note:        r.string(),
		FileName:    r.string(),
	}
}

// MarshalSmartTags serializes an ordered tag set to bytes.
func MarshalSmartTags(tags []core.SmartTag) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.int(len(tags))
		for _, tag := range tags {
			w.string(tag.Name)
			w.string(string(tag.Category))
			w.float64(tag.Confidence)
			w.string(tag.Description)
			w.strings(tag.ExtractedEntities)
		}
	})
}

// UnmarshalSmartTags deserializes an ordered tag set from bytes.
func UnmarshalSmartTags(data []byte) ([]core.SmartTag, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	n := r.length()
	tags := make([]core.SmartTag, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		tags = append(tags, core.SmartTag{
			Name:              r.string(),
			Category:          core.TagCategory(r.string()),
			Confidence:        r.float64(),
			Description:       r.string(),
			ExtractedEntities: r.strings(),
		})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return tags, nil
}

// MarshalQueueEntry serializes an ExtractionQueueEntry to bytes.
func MarshalQueueEntry(entry *core.ExtractionQueueEntry) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.string(entry.Id)
		w.uint64(uint64(entry.RecordId))
		w.int(int(entry.Status))
		w.int(entry.Progress)
		w.string(entry.ErrorMessage)
		w.time(entry.CreatedAt)
		w.time(entry.UpdatedAt)
		w.time(entry.StartedAt)
		w.time(entry.CompletedAt)
	})
}

// UnmarshalQueueEntry deserializes an ExtractionQueueEntry from bytes.
func UnmarshalQueueEntry(data []byte) (*core.ExtractionQueueEntry, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	entry := &core.ExtractionQueueEntry{
		Id:           r.string(),
		RecordId:     core.ID(r.uint64()),
		Status:       core.ExtractionStatus(r.int()),
		Progress:     r.int(),
		ErrorMessage: r.string(),
		CreatedAt:    r.time(),
		UpdatedAt:    r.time(),
		StartedAt:    r.time(),
		CompletedAt:  r.time(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.string(checkpoint.ProcessorType)
		w.uint64(uint64(checkpoint.LastID))
		w.time(checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	checkpoint := &core.Checkpoint{
		ProcessorType: r.string(),
		LastID:        core.ID(r.uint64()),
		UpdatedAt:     r.time(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// StoredVector is a vector store object as persisted by local backends.
type StoredVector struct {
	ID         string
	Vector     []float32
	Properties map[string]string
}

// MarshalVector serializes a StoredVector to bytes.
func MarshalVector(v *StoredVector) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.string(v.ID)
		w.vector(v.Vector)
		w.int(len(v.Properties))
		for _, k := range sortedKeys(v.Properties) {
			w.string(k)
			w.string(v.Properties[k])
		}
	})
}

// UnmarshalVector deserializes a StoredVector from bytes.
func UnmarshalVector(data []byte) (*StoredVector, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	v := &StoredVector{ID: r.string(), Vector: r.vector()}
	n := r.length()
	if n > 0 {
		v.Properties = make(map[string]string, n)
		for i := 0; i < n && r.err == nil; i++ {
			k := r.string()
			v.Properties[k] = r.string()
		}
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return v, nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// CollectionInfo is the metadata of a local vector collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	CreatedAt time.Time
}

// MarshalCollection serializes a CollectionInfo to bytes.
func MarshalCollection(info *CollectionInfo) []byte {
	return encode(func(w *writer) {
		w.int(encodingVersion)
		w.string(info.Name)
		w.int(info.Dimension)
		w.time(info.CreatedAt)
	})
}

// UnmarshalCollection deserializes a CollectionInfo from bytes.
func UnmarshalCollection(data []byte) (*CollectionInfo, error) {
	r := &reader{bs: data}
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	info := &CollectionInfo{Name: r.string(), Dimension: r.int(), CreatedAt: r.time()}
	if err := finish(r); err != nil {
		return nil, err
	}
	return info, nil
}
