package tagging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/ai/mock"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTagStore struct {
	tags map[core.ID][]core.SmartTag
	err  error
}

func (m *memoryTagStore) ReplaceSmartTags(ctx context.Context, id core.ID, tags []core.SmartTag) error {
	if m.err != nil {
		return m.err
	}
	if m.tags == nil {
		m.tags = make(map[core.ID][]core.SmartTag)
	}
	m.tags[id] = tags
	return nil
}

func taggerReturning(tags []ai.GeneratedTag, err error) *mock.MockTagger {
	tagger := mock.NewMockTagger()
	tagger.GenerateTagsFunc = func(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
		return tags, err
	}
	return tagger
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, &memoryTagStore{})
	assert.ErrorIs(t, err, ErrTaggerRequired)

	_, err = NewService(mock.NewMockTagger(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewService(mock.NewMockTagger(), &memoryTagStore{}, WithMaxTags(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestTag_Success(t *testing.T) {
	store := &memoryTagStore{}
	svc, err := NewService(taggerReturning([]ai.GeneratedTag{
		{Name: "  machine   learning ", Category: "Topic", Confidence: 0.9, Description: " ML ", Entities: []string{"PyTorch", " "}},
		{Name: "tutorial", Category: "content_type", Confidence: 0.7},
	}, nil), store)
	require.NoError(t, err)

	outcome, err := svc.Tag(context.Background(), 7, Input{Content: "intro to ml"})
	require.NoError(t, err)
	assert.Equal(t, core.TaggingOutcomeTagged, outcome.Result)
	assert.NoError(t, outcome.Cause)
	require.Len(t, outcome.Tags, 2)
	assert.Equal(t, core.SmartTag{
		Name:              "machine learning",
		Category:          core.TagCategoryTopic,
		Confidence:        0.9,
		Description:       "ML",
		ExtractedEntities: []string{"PyTorch"},
	}, outcome.Tags[0])
	assert.Equal(t, outcome.Tags, store.tags[7])
}

func TestTag_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		tagger  *mock.MockTagger
		content string
	}{
		{"transport error", taggerReturning(nil, core.ExternalServiceError("tagger", errors.New("timeout"))), "text"},
		{"no tags", taggerReturning([]ai.GeneratedTag{}, nil), "text"},
		{"all invalid", taggerReturning([]ai.GeneratedTag{
			{Name: "", Category: "topic", Confidence: 0.5},
			{Name: "way too many words here", Category: "topic", Confidence: 0.5},
			{Name: "ok", Category: "unknown", Confidence: 0.5},
			{Name: "ok", Category: "topic", Confidence: 1.5},
		}, nil), "text"},
		{"empty content", mock.NewMockTagger(), "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryTagStore{}
			svc, err := NewService(tt.tagger, store)
			require.NoError(t, err)

			outcome, err := svc.Tag(context.Background(), 1, Input{Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, core.TaggingOutcomeFallback, outcome.Result)
			assert.Error(t, outcome.Cause)
			assert.Equal(t, []core.SmartTag{core.FallbackTag()}, outcome.Tags)
			assert.Equal(t, []core.SmartTag{core.FallbackTag()}, store.tags[1])
		})
	}
}

func TestTag_CapsAndDeduplicates(t *testing.T) {
	var generated []ai.GeneratedTag
	for i := 0; i < 12; i++ {
		generated = append(generated, ai.GeneratedTag{Name: strings.Repeat("x", i%10+1), Category: "topic", Confidence: 0.5})
	}
	generated = append([]ai.GeneratedTag{{Name: "X", Category: "topic", Confidence: 0.5}}, generated...)

	svc, err := NewService(taggerReturning(generated, nil), &memoryTagStore{}, WithMaxTags(4))
	require.NoError(t, err)

	outcome := svc.Generate(context.Background(), Input{Content: "text"})
	require.Len(t, outcome.Tags, 4)
	assert.Equal(t, []string{"X", "xx", "xxx", "xxxx"}, []string{outcome.Tags[0].Name, outcome.Tags[1].Name, outcome.Tags[2].Name, outcome.Tags[3].Name})
}

func TestTag_StoreFailure(t *testing.T) {
	sentinel := errors.New("disk full")
	svc, err := NewService(mock.NewMockTagger(), &memoryTagStore{err: sentinel})
	require.NoError(t, err)

	outcome, err := svc.Tag(context.Background(), 1, Input{Content: "hello world"})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, core.TaggingOutcomeFailed, outcome.Result)
	assert.NotEmpty(t, outcome.Tags)
}

func TestTag_WithRecordStore(t *testing.T) {
	store, _, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	record, err := store.CreateRecord(ctx, &core.IngestionRecord{
		SourceKind:    core.SourceKindUpload,
		SourceLocator: "uploads/a.txt",
		DeclaredName:  "a.txt",
	})
	require.NoError(t, err)

	svc, err := NewService(mock.NewMockTagger(), store)
	require.NoError(t, err)

	outcome, err := svc.Tag(ctx, record.Id, Input{Content: "Hello world, hello again"})
	require.NoError(t, err)
	assert.Equal(t, core.TaggingOutcomeTagged, outcome.Result)

	stored, err := store.GetSmartTags(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, outcome.Tags, stored)
	assert.Equal(t, "hello", stored[0].Name)

	_, err = svc.Tag(ctx, record.Id+100, Input{Content: "x"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
