package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Tagger asks a language model for descriptive tags.
// Implementations must be thread-safe for concurrent use.
type Tagger interface {
	// GenerateTags returns the tags the model produced for req.
	// Output is returned as parsed; callers validate shape and apply fallbacks.
	// Returns an error on transport failure or unparseable output.
	GenerateTags(ctx context.Context, req TagRequest) ([]GeneratedTag, error)
}

// Chat roles understood by Chatter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter answers a conversation with free-form text.
// Implementations must be thread-safe for concurrent use.
type Chatter interface {
	// Chat returns the model's reply to messages, which are in conversation order.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder, Tagger and Chatter instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Tagger returns the tag generation service.
	// The returned Tagger is safe for concurrent use.
	Tagger() Tagger

	// Chatter returns the conversational model used for answering questions.
	// The returned Chatter is safe for concurrent use.
	Chatter() Chatter

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
