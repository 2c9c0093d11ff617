package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/enrich/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder implements ai.Embedder using langchaingo embedding clients.
// When dimension is positive, every returned vector is checked against it.
type Embedder struct {
	embedder  embeddings.Embedder
	dimension int
	model     string
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	embedder, err := newEmbeddingClient(config)
	if err != nil {
		return nil, err
	}
	return wrapEmbedder(embedder, config.Dimension, config.EmbeddingModel), nil
}

func wrapEmbedder(embedder embeddings.Embedder, dimension int, model string) *Embedder {
	return &Embedder{
		embedder:  embedder,
		dimension: dimension,
		model:     model,
		logger:    slog.Default().With("component", "langchain-embedder"),
	}
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings", "model", e.model, "count", len(texts))

	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	duration := time.Since(start)
	if err != nil {
		e.logger.Warn("embedding failed", "model", e.model, "count", len(texts), "duration_ms", duration.Milliseconds(), "err", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	if e.dimension > 0 {
		for i, v := range vectors {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
			}
		}
	}

	e.logger.Debug("embedding complete", "model", e.model, "count", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}
