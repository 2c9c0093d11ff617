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

package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/tmc/langchaingo/llms"
)

// maxParseAttempts bounds how many times the model is asked again after malformed JSON.
const maxParseAttempts = 3

// ErrMalformedResponse indicates the model never produced parseable tag JSON.
var ErrMalformedResponse = errors.New("malformed tagger response")

// Tagger implements ai.Tagger using langchaingo chat models.
type Tagger struct {
	client          llms.Model
	temperature     float64
	minTags         int
	maxTags         int
	maxContentChars int
	logger          *slog.Logger
}

// newTagger is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newTagger(config *ai.Config) (*Tagger, error) {
	client, err := newChatModel(config, true)
	if err != nil {
		return nil, err
	}
	return wrapModel(client, config), nil
}

func wrapModel(client llms.Model, config *ai.Config) *Tagger {
	return &Tagger{
		client:          client,
		temperature:     config.Temperature,
		minTags:         config.MinTags,
		maxTags:         config.MaxTags,
		maxContentChars: config.MaxContentChars,
		logger:          slog.Default().With("component", "langchain-tagger"),
	}
}

// NewTagger creates a new tagger using the provided configuration.
//
// Returns ai.Tagger interface to enforce abstraction.
func NewTagger(config *ai.Config) (ai.Tagger, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newTagger(config)
}

// GenerateTags asks the chat model for tags describing req.Content.
// Malformed JSON is retried up to maxParseAttempts times; transport errors are not.
func (t *Tagger) GenerateTags(ctx context.Context, req ai.TagRequest) ([]ai.GeneratedTag, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildSystemPrompt(t.minTags, t.maxTags)),
		llms.TextParts(llms.ChatMessageTypeHuman, buildUserPrompt(req, t.maxContentChars)),
	}

	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		response, err := t.client.GenerateContent(ctx, content, llms.WithTemperature(t.temperature), llms.WithJSONMode())
		if err != nil {
			t.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, core.ExternalServiceError("tagger", err)
		}

		if len(response.Choices) < 1 {
			t.logger.Debug("no choices returned from model")
			return []ai.GeneratedTag{}, nil
		}

		tags, err := parseTags(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			t.logger.Warn("error parsing tagger response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}

		t.logger.Debug("generated tags", "count", len(tags), "locator", req.Locator)
		return tags, nil
	}

	t.logger.Error("failed to parse tagger response after retries", "err", lastErr)
	return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, lastErr)
}

// parseTags decodes the model's tag JSON.
func parseTags(raw string) ([]ai.GeneratedTag, error) {
	return decodeTagPayload(raw)
}
