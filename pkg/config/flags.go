package config

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes one CLI flag shared across commands. Commands register
// flags by registry key so the name, shorthand and default agree everywhere
// the flag appears.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Registry keys.
const (
	FlagAPIListen       = "api-listen"
	FlagAPITarget       = "api-target"
	FlagProvider        = "provider"
	FlagModel           = "model"
	FlagBaseURL         = "base-url"
	FlagStorageDriver   = "storage-driver"
	FlagStorageDir      = "storage-dir"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagMaxChars        = "max-chars"
	FlagTopK            = "top-k"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagEventStreamProv = "eventstream-provider"
	FlagKafkaBrokers    = "kafka-brokers"
	FlagPromptDir       = "prompt-dir"
)

// Registry is the FlagSet shared by every parley command.
var Registry = FlagSet{
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagAPITarget:       {Name: "api-target", ViperKey: "client.api_target", Description: "URL of a running parley API server"},
	FlagProvider:        {Name: "provider", Shorthand: "p", ViperKey: "model.provider", Description: "Model provider (zhipu, doubao, openai, ollama, anthropic, gemini)"},
	FlagModel:           {Name: "model", Shorthand: "m", ViperKey: "model.model", Description: "Model name"},
	FlagBaseURL:         {Name: "base-url", ViperKey: "model.base_url", Description: "Model endpoint base URL"},
	FlagStorageDriver:   {Name: "storage", ViperKey: "storage.driver", Description: "Conversation store (file, sqlite, postgres, libsql, gcs, dynamodb, inmemory)"},
	FlagStorageDir:      {Name: "storage-dir", ViperKey: "storage.dir", Description: "Directory for the file conversation store"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite conversation database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagMaxChars:        {Name: "max-chars", ViperKey: "context.max_chars", Description: "Maximum characters in an assembled prompt"},
	FlagTopK:            {Name: "top-k", Shorthand: "k", ViperKey: "retrieval.top_k", Description: "Number of retrieved passages"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite, chroma, qdrant)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store target (path or URL)"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai, zhipu, doubao, gemini)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding vector dimensions"},
	FlagEventStreamProv: {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Turn event publisher (nop, kafka)"},
	FlagKafkaBrokers:    {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagPromptDir:       {Name: "prompt-dir", ViperKey: "live.prompt_dir", Description: "Directory of prompt templates"},
}

// AddStringFlag registers the string flag fs[key] on cmd with its default
// taken from NewDefaultConfig. Unknown keys are ignored.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	if def, ok := fs[key]; ok {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultValue(def.ViperKey), def.Description)
	}
}

// AddUintFlag is AddStringFlag for numeric settings.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, key string, target *uint) {
	def, ok := fs[key]
	if !ok {
		return
	}
	n, _ := strconv.ParseUint(defaultValue(def.ViperKey), 10, 64)
	cmd.Flags().UintVarP(target, def.Name, def.Shorthand, uint(n), def.Description)
}

// BindRegisteredFlags binds the flags named by keys into v so an explicitly
// set flag outranks env, config file and defaults. Keys whose flag is not
// registered on cmd are skipped.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}

func defaultValue(configKey string) string {
	info, ok := configKeys[configKey]
	if !ok {
		return ""
	}
	return info.get(NewDefaultConfig())
}
