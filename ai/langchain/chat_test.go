package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// recordingModel captures the conversation and call options it was sent.
type recordingModel struct {
	scriptedModel
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	return m.scriptedModel.GenerateContent(ctx, messages, options...)
}

func TestChatter_Chat(t *testing.T) {
	model := &recordingModel{scriptedModel: scriptedModel{responses: []string{"Go was released in 2009."}}}
	chatter := wrapChatModel(model)

	reply, err := chatter.Chat(context.Background(), []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: "Answer from context."},
		{Role: ai.RoleUser, Content: "Hi"},
		{Role: ai.RoleAssistant, Content: "Hello"},
		{Role: ai.RoleUser, Content: "When was Go released?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Go was released in 2009.", reply)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, "When was Go released?", model.lastUser)
	assert.InDelta(t, chatTemperature, model.options.Temperature, 1e-9)
	assert.Equal(t, chatMaxTokens, model.options.MaxTokens)
}

func TestChatter_Errors(t *testing.T) {
	chatter := wrapChatModel(&scriptedModel{err: errors.New("connection refused")})
	_, err := chatter.Chat(context.Background(), []ai.ChatMessage{{Role: ai.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, core.ErrExternalService)

	chatter = wrapChatModel(&scriptedModel{responses: []string{"unused"}})
	_, err = chatter.Chat(context.Background(), []ai.ChatMessage{{Role: "tool", Content: "hi"}})
	assert.ErrorIs(t, err, core.ErrValidation)
}
