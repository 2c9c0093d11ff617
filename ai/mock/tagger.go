package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/enrich/ai"
)

// MockTagger is a test double for ai.Tagger.
// It allows custom behavior injection via function fields.
type MockTagger struct {
	// GenerateTagsFunc is called by GenerateTags if set.
	// If nil, uses default word-based tagging.
	GenerateTagsFunc func(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error)

	callCount atomic.Int64
}

// NewMockTagger creates a mock tagger with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockTagger().
func NewMockTagger() *MockTagger {
	return &MockTagger{}
}

// GenerateTags derives topic tags from the first words of the content.
func (m *MockTagger) GenerateTags(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
	m.callCount.Add(1)

	if m.GenerateTagsFunc != nil {
		return m.GenerateTagsFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Default: one topic tag per distinct word, up to 3
	var tags []ai.GeneratedTag
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(req.Content)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		tags = append(tags, ai.GeneratedTag{
			Name:        word,
			Confidence:  0.8,
			Category:    "topic",
			Description: "Mentions " + word,
		})
		if len(tags) == 3 {
			break
		}
	}
	return tags, nil
}

// CallCount returns the number of times GenerateTags was called.
func (m *MockTagger) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockTagger) Reset() {
	m.callCount.Store(0)
	m.GenerateTagsFunc = nil
}
