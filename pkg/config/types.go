package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent parley configuration stored as config.toml
// in the .parley/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Model       ModelConfig       `toml:"model"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Context     ContextConfig     `toml:"context"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Indexer     IndexerConfig     `toml:"indexer"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Live        LiveConfig        `toml:"live"`
}

// StorageConfig selects and configures the conversation store.
type StorageConfig struct {
	Driver           string `toml:"driver,omitempty"`
	Dir              string `toml:"dir,omitempty"`
	SQLitePath       string `toml:"sqlite_path,omitempty"`
	PostgresDSN      string `toml:"postgres_dsn,omitempty"`
	LibSQLURL        string `toml:"libsql_url,omitempty"`
	GCSBucket        string `toml:"gcs_bucket,omitempty"`
	GCSPrefix        string `toml:"gcs_prefix,omitempty"`
	DynamoDBTable    string `toml:"dynamodb_table,omitempty"`
	DynamoDBRegion   string `toml:"dynamodb_region,omitempty"`
	DynamoDBEndpoint string `toml:"dynamodb_endpoint,omitempty"`
}

// ModelConfig describes the language model session. APIKey is usually left
// empty in favor of credentials.toml or the provider's environment variable.
type ModelConfig struct {
	Provider string              `toml:"provider,omitempty"`
	Model    string              `toml:"model,omitempty"`
	BaseURL  string              `toml:"base_url,omitempty"`
	APIKey   string              `toml:"api_key,omitempty"`
	Timeout  string              `toml:"timeout,omitempty"`
	Fallback ModelFallbackConfig `toml:"fallback"`

	// Extra holds generation parameters passed through to the provider
	// (temperature, max_tokens, top_p, top_k, system, stop). File only.
	Extra map[string]any `toml:"extra,omitempty"`
}

// ModelFallbackConfig is used when the primary model cannot be constructed.
type ModelFallbackConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
}

// RetrievalConfig controls retrieval augmented prompts and document chunking.
type RetrievalConfig struct {
	Enabled      bool `toml:"enabled"`
	TopK         uint `toml:"top_k,omitempty"`
	ChunkSize    uint `toml:"chunk_size,omitempty"`
	ChunkOverlap uint `toml:"chunk_overlap,omitempty"`
}

// ContextConfig bounds the assembled prompt.
type ContextConfig struct {
	MaxChars uint `toml:"max_chars,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`

	// RequestTimeout bounds every API request, e.g. "2m". Empty means no limit.
	RequestTimeout string `toml:"request_timeout,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// API server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// IndexerConfig controls background indexing of persisted turns.
type IndexerConfig struct {
	Enabled   bool `toml:"enabled"`
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// EventStreamConfig selects where turn events are published.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// LiveConfig configures the live viewer message dispatcher.
type LiveConfig struct {
	PromptDir string `toml:"prompt_dir,omitempty"`
	Persona   string `toml:"persona,omitempty"`
	Workers   uint   `toml:"workers,omitempty"`
	QueueSize uint   `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":            stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.dir":               stringKey(func(c *Config) *string { return &c.Storage.Dir }),
	"storage.sqlite_path":       stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":      stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.libsql_url":        stringKey(func(c *Config) *string { return &c.Storage.LibSQLURL }),
	"storage.gcs_bucket":        stringKey(func(c *Config) *string { return &c.Storage.GCSBucket }),
	"storage.gcs_prefix":        stringKey(func(c *Config) *string { return &c.Storage.GCSPrefix }),
	"storage.dynamodb_table":    stringKey(func(c *Config) *string { return &c.Storage.DynamoDBTable }),
	"storage.dynamodb_region":   stringKey(func(c *Config) *string { return &c.Storage.DynamoDBRegion }),
	"storage.dynamodb_endpoint": stringKey(func(c *Config) *string { return &c.Storage.DynamoDBEndpoint }),

	"model.provider":          stringKey(func(c *Config) *string { return &c.Model.Provider }),
	"model.model":             stringKey(func(c *Config) *string { return &c.Model.Model }),
	"model.base_url":          stringKey(func(c *Config) *string { return &c.Model.BaseURL }),
	"model.api_key":           stringKey(func(c *Config) *string { return &c.Model.APIKey }),
	"model.timeout":           stringKey(func(c *Config) *string { return &c.Model.Timeout }),
	"model.fallback.provider": stringKey(func(c *Config) *string { return &c.Model.Fallback.Provider }),
	"model.fallback.model":    stringKey(func(c *Config) *string { return &c.Model.Fallback.Model }),
	"model.fallback.base_url": stringKey(func(c *Config) *string { return &c.Model.Fallback.BaseURL }),

	"retrieval.enabled":       boolKey("retrieval.enabled", func(c *Config) *bool { return &c.Retrieval.Enabled }),
	"retrieval.top_k":         uintKey("retrieval.top_k", func(c *Config) *uint { return &c.Retrieval.TopK }),
	"retrieval.chunk_size":    uintKey("retrieval.chunk_size", func(c *Config) *uint { return &c.Retrieval.ChunkSize }),
	"retrieval.chunk_overlap": uintKey("retrieval.chunk_overlap", func(c *Config) *uint { return &c.Retrieval.ChunkOverlap }),

	"context.max_chars": uintKey("context.max_chars", func(c *Config) *uint { return &c.Context.MaxChars }),

	"api.listen":          stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.request_timeout": stringKey(func(c *Config) *string { return &c.API.RequestTimeout }),
	"client.api_target":   stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"indexer.enabled":    boolKey("indexer.enabled", func(c *Config) *bool { return &c.Indexer.Enabled }),
	"indexer.workers":    uintKey("indexer.workers", func(c *Config) *uint { return &c.Indexer.Workers }),
	"indexer.queue_size": uintKey("indexer.queue_size", func(c *Config) *uint { return &c.Indexer.QueueSize }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"live.prompt_dir": stringKey(func(c *Config) *string { return &c.Live.PromptDir }),
	"live.persona":    stringKey(func(c *Config) *string { return &c.Live.Persona }),
	"live.workers":    uintKey("live.workers", func(c *Config) *uint { return &c.Live.Workers }),
	"live.queue_size": uintKey("live.queue_size", func(c *Config) *uint { return &c.Live.QueueSize }),
}

// orderedKeys is the stable, TOML-section order used by ValidConfigKeys.
var orderedKeys = []string{
	"storage.driver",
	"storage.dir",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"storage.libsql_url",
	"storage.gcs_bucket",
	"storage.gcs_prefix",
	"storage.dynamodb_table",
	"storage.dynamodb_region",
	"storage.dynamodb_endpoint",
	"model.provider",
	"model.model",
	"model.base_url",
	"model.api_key",
	"model.timeout",
	"model.fallback.provider",
	"model.fallback.model",
	"model.fallback.base_url",
	"retrieval.enabled",
	"retrieval.top_k",
	"retrieval.chunk_size",
	"retrieval.chunk_overlap",
	"context.max_chars",
	"api.listen",
	"api.request_timeout",
	"client.api_target",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"indexer.enabled",
	"indexer.workers",
	"indexer.queue_size",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"live.prompt_dir",
	"live.persona",
	"live.workers",
	"live.queue_size",
}
