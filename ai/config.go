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


package ai

import (
	"slices"
	"strings"

	"github.com/poiesic/enrich/core"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Providers lists every supported provider name.
var Providers = []string{ProviderOpenAI, ProviderOllama, ProviderAnthropic}

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the embedding backend: "openai" or "ollama".
	// It is also the tagging backend unless TaggerProvider is set.
	Provider string

	// TaggerProvider overrides the tagging backend: "openai", "ollama" or "anthropic".
	TaggerProvider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1", "http://localhost:11434" for Ollama
	EmbeddingHost string

	// TaggerHost is the base URL for the tagging chat API.
	// Ignored by the anthropic provider.
	TaggerHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-small", "nomic-embed-text"
	EmbeddingModel string

	// TaggerModel is the model identifier to use for tag generation.
	// Example: "gpt-4o-mini", "qwen2.5:3b"
	TaggerModel string

	// APIKey authenticates against hosted providers.
	// Local OpenAI-compatible servers accept any value.
	APIKey string

	// Dimension is the expected embedding dimension.
	// 0 accepts the dimension of the first vector returned.
	// Default: 1536
	Dimension int

	// Temperature is the sampling temperature used for tag generation.
	// Default: 0.3
	Temperature float64

	// MinTags and MaxTags bound the number of tags requested from the model.
	// Default: 3 and 8
	MinTags int
	MaxTags int

	// MaxContentChars truncates tagging input to this many characters.
	// Default: 4000
	MaxContentChars int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedding provider, which also tags unless overridden.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithTaggerProvider sets a separate provider for tag generation.
func WithTaggerProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.TaggerProvider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithTaggerHost sets the tagging service host URL.
func WithTaggerHost(host string) ConfigOption {
	return func(c *Config) {
		c.TaggerHost = host
	}
}

// WithHost sets both embedding and tagger hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.TaggerHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithTaggerModel sets the tagging model identifier.
func WithTaggerModel(model string) ConfigOption {
	return func(c *Config) {
		c.TaggerModel = model
	}
}

// WithAPIKey sets the API key for hosted providers.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimension sets the expected embedding dimension.
func WithDimension(dimension int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dimension
	}
}

// WithTemperature sets the tagging temperature.
func WithTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

// DefaultConfig returns a Config for OpenAI hosted models.
func DefaultConfig() *Config {
	defaultHost := "https://api.openai.com/v1"
	return &Config{
		Provider:        ProviderOpenAI,
		EmbeddingHost:   defaultHost,
		TaggerHost:      defaultHost,
		EmbeddingModel:  "text-embedding-3-small",
		TaggerModel:     "gpt-4o-mini",
		Dimension:       1536,
		Temperature:     0.3,
		MinTags:         3,
		MaxTags:         8,
		MaxContentChars: 4000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//   cfg := NewConfig(
//       WithProvider(ProviderOllama),
//       WithHost("http://localhost:11434"),
//       WithEmbeddingModel("nomic-embed-text"),
//       WithDimension(768),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// EffectiveTaggerProvider returns TaggerProvider, falling back to Provider.
func (c *Config) EffectiveTaggerProvider() string {
	if c.TaggerProvider != "" {
		return c.TaggerProvider
	}
	return c.Provider
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix; Ollama hosts lose it.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.TaggerProvider = strings.ToLower(strings.TrimSpace(c.TaggerProvider))
	c.EmbeddingHost = normalizeHost(c.Provider, c.EmbeddingHost)
	c.TaggerHost = normalizeHost(c.EffectiveTaggerProvider(), c.TaggerHost)
}

func normalizeHost(provider, host string) string {
	if host == "" {
		return host
	}
	host = strings.TrimSuffix(host, "/")
	switch provider {
	case ProviderOpenAI:
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
	case ProviderOllama:
		host = strings.TrimSuffix(host, "/v1")
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	case ProviderAnthropic:
		return core.ConfigurationError("ai config: anthropic does not provide embeddings; set TaggerProvider instead")
	default:
		return core.ConfigurationError("ai config: unknown provider %q", c.Provider)
	}
	tagger := c.EffectiveTaggerProvider()
	if !slices.Contains(Providers, tagger) {
		return core.ConfigurationError("ai config: unknown tagger provider %q", tagger)
	}
	if c.EmbeddingHost == "" {
		return core.ConfigurationError("ai config: EmbeddingHost is required")
	}
	if c.TaggerHost == "" && tagger != ProviderAnthropic {
		return core.ConfigurationError("ai config: TaggerHost is required")
	}
	if tagger == ProviderAnthropic && c.APIKey == "" {
		return core.ConfigurationError("ai config: APIKey is required for anthropic")
	}
	if c.EmbeddingModel == "" {
		return core.ConfigurationError("ai config: EmbeddingModel is required")
	}
	if c.TaggerModel == "" {
		return core.ConfigurationError("ai config: TaggerModel is required")
	}
	if c.Dimension < 0 {
		return core.ConfigurationError("ai config: Dimension must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return core.ConfigurationError("ai config: Temperature must be between 0 and 2")
	}
	if c.MinTags < 1 || c.MaxTags < c.MinTags {
		return core.ConfigurationError("ai config: tag bounds must satisfy 1 <= MinTags <= MaxTags")
	}
	if c.MaxContentChars < 1 {
		return core.ConfigurationError("ai config: MaxContentChars must be positive")
	}
	return nil
}
