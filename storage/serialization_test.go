package storage

import (
	"testing"
	"time"

	"github.com/poiesic/enrich/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSerialization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.IngestionRecord{
		Id:            42,
		Owner:         core.User{ID: "user-1"},
		SourceKind:    core.SourceKindUpload,
		SourceLocator: "uploads/abc/notes.txt",
		BlobPath:      "uploads/abc/notes.txt",
		MimeType:      "text/plain",
		DeclaredName:  "notes.txt",
		Title:         "Notes",
		ByteSize:      11,
		Status:        core.StatusCompleted,
		ContentText:   "hello world",
		ExtractedContent: &core.ExtractedContent{
			Kind:      core.ContentKindText,
			Encoding:  "utf-8",
			LineCount: 1,
			CharCount: 11,
		},
		ExtractionStatus:    core.ExtractionStatusCompleted,
		Embedding:           []float32{0.1, -0.2, 0.3},
		TaggingOutcome:      core.TaggingOutcomeTagged,
		VectorObjectID:      "2b7c0f0e-0000-5000-8000-000000000000",
		RetryCount:          2,
		CreatedAt:           now,
		UpdatedAt:           now,
		ProcessingStartedAt: now,
	}

	decoded, err := UnmarshalRecord(MarshalRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
	assert.True(t, decoded.ProcessingCompletedAt.IsZero())
}

func TestRecordSerialization_AnonymousOwner(t *testing.T) {
	record := &core.IngestionRecord{
		Id:            1,
		SourceKind:    core.SourceKindCrawl,
		SourceLocator: "https://example.com",
		Status:        core.StatusPending,
	}

	decoded, err := UnmarshalRecord(MarshalRecord(record))
	require.NoError(t, err)
	assert.Equal(t, core.Anonymous{}, decoded.Owner)
	assert.Nil(t, decoded.ExtractedContent)
	assert.Nil(t, decoded.Embedding)
}

func TestRecordSerialization_Truncated(t *testing.T) {
	data := MarshalRecord(&core.IngestionRecord{Id: 9, ContentText: "some content"})

	_, err := UnmarshalRecord(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalRecord(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestSmartTagSerialization(t *testing.T) {
	tags := []core.SmartTag{
		{Name: "machine learning", Category: core.TagCategoryTopic, Confidence: 0.92, Description: "ML content", ExtractedEntities: []string{"PyTorch", "GPU"}},
		core.FallbackTag(),
	}

	decoded, err := UnmarshalSmartTags(MarshalSmartTags(tags))
	require.NoError(t, err)
	assert.Equal(t, tags, decoded)

	empty, err := UnmarshalSmartTags(MarshalSmartTags(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestQueueEntrySerialization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &core.ExtractionQueueEntry{
		Id:        "0d4e7a6c-1111-4222-8333-444455556666",
		RecordId:  7,
		Status:    core.ExtractionStatusProcessing,
		Progress:  30,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: now,
	}

	decoded, err := UnmarshalQueueEntry(MarshalQueueEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestCheckpointSerialization(t *testing.T) {
	checkpoint := &core.Checkpoint{
		ProcessorType: "reembed",
		LastID:        1234,
		UpdatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, checkpoint, decoded)
}

func TestVectorSerialization(t *testing.T) {
	v := &StoredVector{
		ID:         "obj-1",
		Vector:     []float32{1, 0, 0.5},
		Properties: map[string]string{"title": "Doc", "url": "https://example.com", "source": "crawl"},
	}

	decoded, err := UnmarshalVector(MarshalVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestIDSerialization(t *testing.T) {
	for _, id := range []core.ID{1, 127, 128, 1 << 40} {
		decoded, err := UnmarshalID(MarshalID(id))
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	data := encode(func(w *writer) {
		w.int(encodingVersion + 1)
		w.string("x")
	})

	_, err := UnmarshalCheckpoint(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
