package mock

import (
	"context"
	"sync"

	"github.com/poiesic/enrich/ai"
)

// MockChatter is a test double for ai.Chatter.
type MockChatter struct {
	// ChatFunc is called by Chat if set.
	// If nil, Chat replies with Reply.
	ChatFunc func(ctx context.Context, messages []ai.ChatMessage) (string, error)

	// Reply is the default answer.
	Reply string

	mu   sync.Mutex
	last []ai.ChatMessage
	n    int
}

// NewMockChatter creates a mock chatter that answers with a fixed reply.
func NewMockChatter() *MockChatter {
	return &MockChatter{Reply: "mock answer"}
}

// Chat records messages and returns the configured reply.
func (m *MockChatter) Chat(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	m.mu.Lock()
	m.n++
	m.last = append([]ai.ChatMessage(nil), messages...)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Reply, nil
}

// LastMessages returns the conversation sent by the most recent Chat call.
func (m *MockChatter) LastMessages() []ai.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// CallCount returns the number of times Chat was called.
func (m *MockChatter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}
