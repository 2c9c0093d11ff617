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
	"fmt"
	"log/slog"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// noToken is sent to OpenAI-compatible local services that don't require authentication.
const noToken = "none"

// Provider implements ai.AIProvider on top of langchaingo clients.
// It manages embedder and tagger instances.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	tagger   *Tagger
	chatter  *Chatter
	logger   *slog.Logger
}

// NewProvider creates a new AI provider for the configured backends.
// The config is normalized and validated before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to provider-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	tagger, err := newTagger(config)
	if err != nil {
		return nil, err
	}

	chatter, err := newChatter(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		tagger:   tagger,
		chatter:  chatter,
		logger:   slog.Default().With("component", "langchain-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Tagger returns the tag generation service.
func (p *Provider) Tagger() ai.Tagger {
	return p.tagger
}

// Chatter returns the conversational model.
func (p *Provider) Chatter() ai.Chatter {
	return p.chatter
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing langchain provider")
	return nil
}

// newEmbeddingClient builds the langchaingo embedder for config.Provider.
func newEmbeddingClient(config *ai.Config) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient

	switch config.Provider {
	case ai.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithModel(config.EmbeddingModel),
			ollama.WithServerURL(config.EmbeddingHost),
		)
		if err != nil {
			return nil, core.ConfigurationError("create ollama embedding client: %v", err)
		}
		client = llm

	case ai.ProviderOpenAI:
		llm, err := openai.New(
			openai.WithBaseURL(config.EmbeddingHost),
			openai.WithToken(tokenOrNone(config.APIKey)),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, core.ConfigurationError("create openai embedding client: %v", err)
		}
		client = llm

	default:
		return nil, core.ConfigurationError("unsupported embedding provider: %s", config.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// newChatModel builds the langchaingo chat model for the effective tagger provider.
// jsonOutput constrains Ollama models to emit JSON.
func newChatModel(config *ai.Config, jsonOutput bool) (llms.Model, error) {
	switch provider := config.EffectiveTaggerProvider(); provider {
	case ai.ProviderOllama:
		opts := []ollama.Option{
			ollama.WithModel(config.TaggerModel),
			ollama.WithServerURL(config.TaggerHost),
		}
		if jsonOutput {
			opts = append(opts, ollama.WithFormat("json"))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, core.ConfigurationError("create ollama model: %v", err)
		}
		return model, nil

	case ai.ProviderOpenAI:
		model, err := openai.New(
			openai.WithBaseURL(config.TaggerHost),
			openai.WithToken(tokenOrNone(config.APIKey)),
			openai.WithModel(config.TaggerModel),
		)
		if err != nil {
			return nil, core.ConfigurationError("create openai model: %v", err)
		}
		return model, nil

	case ai.ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithToken(config.APIKey),
			anthropic.WithModel(config.TaggerModel),
		}
		if config.TaggerHost != "" {
			opts = append(opts, anthropic.WithBaseURL(config.TaggerHost))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, core.ConfigurationError("create anthropic model: %v", err)
		}
		return model, nil

	default:
		return nil, core.ConfigurationError("unsupported tagger provider: %s", provider)
	}
}

func tokenOrNone(key string) string {
	if key == "" {
		return noToken
	}
	return key
}
