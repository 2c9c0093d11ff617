// Package config loads application configuration from an optional YAML file
// and ENRICH_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/core"
	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	BackendBadger  = "badger"
	BackendSurreal = "surreal"
)

// Config holds all configuration values.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	AI          AIConfig          `yaml:"ai"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StorageConfig locates the BadgerDB database.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// AIConfig mirrors ai.Config.
type AIConfig struct {
	Provider        string  `yaml:"provider"`
	TaggerProvider  string  `yaml:"tagger_provider"`
	EmbeddingHost   string  `yaml:"embedding_host"`
	TaggerHost      string  `yaml:"tagger_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	TaggerModel     string  `yaml:"tagger_model"`
	APIKey          string  `yaml:"api_key"`
	Dimension       int     `yaml:"dimension"`
	Temperature     float64 `yaml:"temperature"`
	MinTags         int     `yaml:"min_tags"`
	MaxTags         int     `yaml:"max_tags"`
	MaxContentChars int     `yaml:"max_content_chars"`
}

// VectorStoreConfig selects and connects the vector store.
type VectorStoreConfig struct {
	Backend    string `yaml:"backend"`
	Collection string `yaml:"collection"`

	// SurrealDB connection
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	AuthLevel string `yaml:"auth_level"`
}

// CrawlerConfig configures the Firecrawl client.
type CrawlerConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// PipelineConfig tunes batching, pacing and retries.
type PipelineConfig struct {
	PoolSize        int           `yaml:"pool_size"` // 0 picks NumCPU/2
	MaxRetries      int           `yaml:"max_retries"`
	TaggingTimeout  time.Duration `yaml:"tagging_timeout"`
	StaleAfter      time.Duration `yaml:"stale_after"` // in-flight records idle longer are interrupted
	SubBatchSize    int           `yaml:"sub_batch_size"`
	Concurrency     int           `yaml:"concurrency"`
	PaceDelay       time.Duration `yaml:"pace_delay"`
	UploadBatchSize int           `yaml:"upload_batch_size"`
	MaxTextLength   int           `yaml:"max_text_length"`
	Normalize       bool          `yaml:"normalize"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{Path: "./enrich-data"},
		AI: AIConfig{
			Provider:        aiDefaults.Provider,
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			TaggerHost:      aiDefaults.TaggerHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			TaggerModel:     aiDefaults.TaggerModel,
			Dimension:       aiDefaults.Dimension,
			Temperature:     aiDefaults.Temperature,
			MinTags:         aiDefaults.MinTags,
			MaxTags:         aiDefaults.MaxTags,
			MaxContentChars: aiDefaults.MaxContentChars,
		},
		VectorStore: VectorStoreConfig{
			Backend:    BackendBadger,
			Collection: "documents",
			URL:        "ws://localhost:8000/rpc",
			Namespace:  "enrich",
			Database:   "vectors",
			Username:   "root",
			Password:   "root",
			AuthLevel:  "root",
		},
		Crawler: CrawlerConfig{
			URL:          "https://api.firecrawl.dev",
			PollInterval: 2 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxRetries:      5,
			TaggingTimeout:  30 * time.Second,
			StaleAfter:      30 * time.Minute,
			SubBatchSize:    10,
			Concurrency:     1,
			PaceDelay:       100 * time.Millisecond,
			UploadBatchSize: 100,
			MaxTextLength:   32000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when empty), then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, core.ConfigurationError("read config file: %v", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return core.ConfigurationError("parse config file: %v", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from ENRICH_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, core.ConfigurationError("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, core.ConfigurationError("%s: %q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	str("ENRICH_STORAGE_PATH", &c.Storage.Path)

	str("ENRICH_AI_PROVIDER", &c.AI.Provider)
	str("ENRICH_TAGGER_PROVIDER", &c.AI.TaggerProvider)
	str("ENRICH_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("ENRICH_TAGGER_HOST", &c.AI.TaggerHost)
	str("ENRICH_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("ENRICH_TAGGER_MODEL", &c.AI.TaggerModel)
	str("ENRICH_API_KEY", &c.AI.APIKey)
	num("ENRICH_EMBEDDING_DIMENSION", &c.AI.Dimension)

	str("ENRICH_VECTOR_BACKEND", &c.VectorStore.Backend)
	str("ENRICH_COLLECTION", &c.VectorStore.Collection)
	str("ENRICH_SURREALDB_URL", &c.VectorStore.URL)
	str("ENRICH_SURREALDB_NAMESPACE", &c.VectorStore.Namespace)
	str("ENRICH_SURREALDB_DATABASE", &c.VectorStore.Database)
	str("ENRICH_SURREALDB_USER", &c.VectorStore.Username)
	str("ENRICH_SURREALDB_PASS", &c.VectorStore.Password)
	str("ENRICH_SURREALDB_AUTH_LEVEL", &c.VectorStore.AuthLevel)

	str("ENRICH_CRAWLER_URL", &c.Crawler.URL)
	str("FIRECRAWL_API_KEY", &c.Crawler.APIKey)
	str("ENRICH_CRAWLER_API_KEY", &c.Crawler.APIKey)

	num("ENRICH_POOL_SIZE", &c.Pipeline.PoolSize)
	num("ENRICH_MAX_RETRIES", &c.Pipeline.MaxRetries)
	num("ENRICH_SUB_BATCH_SIZE", &c.Pipeline.SubBatchSize)
	num("ENRICH_UPLOAD_BATCH_SIZE", &c.Pipeline.UploadBatchSize)
	num("ENRICH_MAX_TEXT_LENGTH", &c.Pipeline.MaxTextLength)
	duration("ENRICH_PACE_DELAY", &c.Pipeline.PaceDelay)
	duration("ENRICH_TAGGING_TIMEOUT", &c.Pipeline.TaggingTimeout)
	duration("ENRICH_STALE_AFTER", &c.Pipeline.StaleAfter)

	str("ENRICH_LOG_LEVEL", &c.Logging.Level)
	str("ENRICH_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// AIConfig converts the AI section to a normalized ai.Config.
func (c *Config) AIConfig() *ai.Config {
	cfg := &ai.Config{
		Provider:        c.AI.Provider,
		TaggerProvider:  c.AI.TaggerProvider,
		EmbeddingHost:   c.AI.EmbeddingHost,
		TaggerHost:      c.AI.TaggerHost,
		EmbeddingModel:  c.AI.EmbeddingModel,
		TaggerModel:     c.AI.TaggerModel,
		APIKey:          c.AI.APIKey,
		Dimension:       c.AI.Dimension,
		Temperature:     c.AI.Temperature,
		MinTags:         c.AI.MinTags,
		MaxTags:         c.AI.MaxTags,
		MaxContentChars: c.AI.MaxContentChars,
	}
	cfg.Normalize()
	return cfg
}

// Validate checks every section and joins the problems found.
func (c *Config) Validate() error {
	var errs []error
	if !c.Storage.InMemory && strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, core.ConfigurationError("storage path is required"))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.VectorStore.Backend {
	case BackendBadger:
	case BackendSurreal:
		if c.VectorStore.URL == "" || c.VectorStore.Namespace == "" || c.VectorStore.Database == "" {
			errs = append(errs, core.ConfigurationError("surreal backend needs url, namespace and database"))
		}
	default:
		errs = append(errs, core.ConfigurationError("unknown vector store backend %q", c.VectorStore.Backend))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, core.ConfigurationError("vector store collection is required"))
	}

	p := c.Pipeline
	if p.PoolSize < 0 {
		errs = append(errs, core.ConfigurationError("pool size must not be negative"))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, core.ConfigurationError("max retries must not be negative"))
	}
	if p.TaggingTimeout <= 0 {
		errs = append(errs, core.ConfigurationError("tagging timeout must be positive"))
	}
	if p.StaleAfter <= 0 {
		errs = append(errs, core.ConfigurationError("stale-after must be positive"))
	}
	if p.SubBatchSize < 1 || p.Concurrency < 1 || p.UploadBatchSize < 1 {
		errs = append(errs, core.ConfigurationError("batch sizes and concurrency must be at least 1"))
	}
	if p.Concurrency > p.SubBatchSize {
		errs = append(errs, core.ConfigurationError("concurrency %d exceeds sub-batch size %d", p.Concurrency, p.SubBatchSize))
	}
	if p.PaceDelay < 0 {
		errs = append(errs, core.ConfigurationError("pace delay must not be negative"))
	}
	if p.MaxTextLength < 1 {
		errs = append(errs, core.ConfigurationError("max text length must be at least 1"))
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
