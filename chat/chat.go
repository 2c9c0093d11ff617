package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/search"
)

const (
	// DefaultLimit is the number of documents retrieved per question.
	DefaultLimit = 5

	// DefaultMaxDistance drops documents farther than this cosine distance.
	DefaultMaxDistance = 0.7

	// DefaultHistoryTurns is how many earlier messages are sent with a question.
	DefaultHistoryTurns = 10

	// DefaultContextChars truncates each document's content in the context block.
	DefaultContextChars = 500

	noDocuments = "No relevant documents were found."
)

const systemPrompt = `You are a helpful assistant answering questions about a document collection.
Base your answer on the documents below. If they do not contain the answer, say so.
Cite the titles or URLs of the documents you used.

Documents:
%s`

var (
	// ErrRetrieverRequired is returned when no searcher is provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrChatterRequired is returned when no chat model is provided.
	ErrChatterRequired = errors.New("chatter required")
)

// Retriever finds the documents nearest to a query. *search.Searcher implements it.
type Retriever interface {
	Search(ctx context.Context, collection, query string, limit int, maxDistance float32) ([]search.Result, error)
}

// Source identifies a document an answer drew on.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the reply to one question.
type Answer struct {
	Response          string   `json:"response"`
	RelevantDocuments int      `json:"relevantDocuments"`
	Sources           []Source `json:"sources"`
}

// Service answers questions with retrieved documents as context.
type Service struct {
	retriever    Retriever
	chatter      ai.Chatter
	limit        int
	maxDistance  float32
	historyTurns int
	contextChars int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLimit sets how many documents are retrieved.
func WithLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithMaxDistance sets the retrieval distance cutoff. Zero disables it.
func WithMaxDistance(d float32) Option {
	return func(s *Service) {
		s.maxDistance = d
	}
}

// WithHistoryTurns sets how many history messages accompany a question.
func WithHistoryTurns(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyTurns = n
		}
	}
}

// WithContextChars sets the per-document content budget of the context block.
func WithContextChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.contextChars = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a chat service.
func NewService(retriever Retriever, chatter ai.Chatter, opts ...Option) (*Service, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if chatter == nil {
		return nil, ErrChatterRequired
	}
	s := &Service{
		retriever:    retriever,
		chatter:      chatter,
		limit:        DefaultLimit,
		maxDistance:  DefaultMaxDistance,
		historyTurns: DefaultHistoryTurns,
		contextChars: DefaultContextChars,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat")
	return s, nil
}

// Ask answers message using documents of collection and the tail of history.
func (s *Service) Ask(ctx context.Context, collection, message string, history []ai.ChatMessage) (*Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, core.ValidationError("chat message is required")
	}

	results, err := s.retriever.Search(ctx, collection, message, s.limit, s.maxDistance)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	messages := make([]ai.ChatMessage, 0, s.historyTurns+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: fmt.Sprintf(systemPrompt, s.buildContext(results))})
	messages = append(messages, recent(history, s.historyTurns)...)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: message})

	reply, err := s.chatter.Chat(ctx, messages)
	if err != nil {
		s.logger.Error("chat model failed", "err", err)
		return nil, core.ExternalServiceError("chat", err)
	}

	s.logger.Debug("answered question", "collection", collection, "documents", len(results))
	return &Answer{
		Response:          strings.TrimSpace(reply),
		RelevantDocuments: len(results),
		Sources:           sources(results),
	}, nil
}

func (s *Service) buildContext(results []search.Result) string {
	if len(results) == 0 {
		return noDocuments
	}
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		props := r.Object.Properties
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] Title: %s\n", i+1, props.Title)
		if props.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", props.URL)
		}
		b.WriteString("Content: ")
		b.WriteString(truncate(props.Content, s.contextChars))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// recent keeps the last n user and assistant messages of history.
func recent(history []ai.ChatMessage, n int) []ai.ChatMessage {
	kept := make([]ai.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role != ai.RoleUser && msg.Role != ai.RoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		kept = append(kept, msg)
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}

func sources(results []search.Result) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		props := r.Object.Properties
		out = append(out, Source{Title: props.Title, URL: props.URL})
	}
	return out
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
