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

// Package langchain provides AI service implementations on top of langchaingo.
//
// Embeddings come from OpenAI-compatible services (OpenAI, LocalAI, vLLM) or
// Ollama. Tags come from a chat model served by any of those or by Anthropic.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithProvider(ai.ProviderOllama),
//	    ai.WithHost("http://localhost:11434"), // /v1 stripped for ollama
//	    ai.WithEmbeddingModel("nomic-embed-text"),
//	    ai.WithTaggerModel("qwen2.5:3b"),
//	    ai.WithDimension(768),
//	)
//
//	provider, err := langchain.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
//	tags, err := provider.Tagger().GenerateTags(ctx, ai.TagRequest{Content: "..."})
package langchain
