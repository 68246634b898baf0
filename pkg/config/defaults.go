package config

const (
	defaultStorageDriver = "file"

	defaultModelProvider = "zhipu"
	defaultModel         = "glm-4"
	defaultModelTimeout  = "60s"

	defaultTopK         = 3
	defaultChunkSize    = 500
	defaultChunkOverlap = 50

	defaultMaxChars = 8000

	defaultAPIListen         = ":8081"
	defaultAPIRequestTimeout = "120s"
	defaultClientAPITarget   = "http://localhost:8081"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "chat_history"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultIndexerWorkers   = 3
	defaultIndexerQueueSize = 256

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "parley.turns"

	defaultLivePersona   = "persona"
	defaultLiveWorkers   = 1
	defaultLiveQueueSize = 100
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Model: ModelConfig{
			Provider: defaultModelProvider,
			Model:    defaultModel,
			Timeout:  defaultModelTimeout,
		},
		Retrieval: RetrievalConfig{
			Enabled:      true,
			TopK:         defaultTopK,
			ChunkSize:    defaultChunkSize,
			ChunkOverlap: defaultChunkOverlap,
		},
		Context: ContextConfig{
			MaxChars: defaultMaxChars,
		},
		API: APIConfig{
			Listen:         defaultAPIListen,
			RequestTimeout: defaultAPIRequestTimeout,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Indexer: IndexerConfig{
			Enabled:   true,
			Workers:   defaultIndexerWorkers,
			QueueSize: defaultIndexerQueueSize,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Live: LiveConfig{
			Persona:   defaultLivePersona,
			Workers:   defaultLiveWorkers,
			QueueSize: defaultLiveQueueSize,
		},
	}
}
