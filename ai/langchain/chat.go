package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/tmc/langchaingo/llms"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 1000
)

// Chatter implements ai.Chatter on the tagger's chat model, without JSON output.
type Chatter struct {
	client llms.Model
	logger *slog.Logger
}

func newChatter(config *ai.Config) (*Chatter, error) {
	client, err := newChatModel(config, false)
	if err != nil {
		return nil, err
	}
	return wrapChatModel(client), nil
}

func wrapChatModel(client llms.Model) *Chatter {
	return &Chatter{
		client: client,
		logger: slog.Default().With("component", "langchain-chatter"),
	}
}

// Chat sends messages to the model and returns the first choice.
func (c *Chatter) Chat(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role, err := chatRole(msg.Role)
		if err != nil {
			return "", err
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	response, err := c.client.GenerateContent(ctx, content,
		llms.WithTemperature(chatTemperature),
		llms.WithMaxTokens(chatMaxTokens))
	if err != nil {
		c.logger.Error("chat request failed", "err", err)
		return "", core.ExternalServiceError("chat", err)
	}
	if len(response.Choices) < 1 {
		return "", core.ExternalServiceError("chat", fmt.Errorf("model returned no choices"))
	}
	return response.Choices[0].Content, nil
}

func chatRole(role string) (llms.ChatMessageType, error) {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem, nil
	case ai.RoleUser:
		return llms.ChatMessageTypeHuman, nil
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI, nil
	default:
		return "", core.ValidationError("unknown chat role %q", role)
	}
}
