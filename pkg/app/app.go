// Package app assembles the parley service from configuration: the
// conversation store, the model gateway, retrieval, background indexing,
// the event stream and the orchestrator that ties them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/credentials"
	"github.com/papercomputeco/parley/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/parley/pkg/embeddings/utils"
	"github.com/papercomputeco/parley/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/parley/pkg/eventstream/utils"
	"github.com/papercomputeco/parley/pkg/llm/gateway"
	"github.com/papercomputeco/parley/pkg/llm/provider"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/prompt"
	"github.com/papercomputeco/parley/pkg/retrieval"
	"github.com/papercomputeco/parley/pkg/storage"
	storageutils "github.com/papercomputeco/parley/pkg/storage/utils"
	"github.com/papercomputeco/parley/pkg/vector"
	vectorutils "github.com/papercomputeco/parley/pkg/vector/utils"
	"github.com/papercomputeco/parley/pkg/worker"
)

// Options adjust how Build wires the service.
type Options struct {
	// ConfigDir overrides .parley/ resolution.
	ConfigDir string

	// RequireRetrieval makes a retrieval setup failure fatal instead of
	// disabling retrieval with a warning.
	RequireRetrieval bool

	// SkipIndexer leaves persisted turns unindexed and unpublished.
	SkipIndexer bool

	// Factory overrides provider construction, mainly for tests.
	Factory gateway.Factory

	Logger *slog.Logger
}

// App owns every long-lived component. Close releases them in reverse
// order of construction.
type App struct {
	Config       *config.Config
	Store        *storage.Store
	Gateway      *gateway.Gateway
	Retrieval    *retrieval.Gateway
	Orchestrator *orchestrator.Orchestrator
	Searcher     *search.Searcher

	logger    *slog.Logger
	vectors   vector.Driver
	pool      *worker.Pool
	publisher eventstream.Publisher
}

// Build constructs the service. The model is not contacted; it is built on
// the first generate call.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	a := &App{Config: cfg, logger: opts.Logger}

	creds, err := credentials.NewManager(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	driver, err := a.newStorageDriver(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.Store = storage.NewStore(driver, opts.Logger)

	gwConfig, err := gatewayConfig(cfg, creds)
	if err != nil {
		a.Close()
		return nil, err
	}
	gwConfig.Factory = opts.Factory
	gwConfig.Logger = opts.Logger
	a.Gateway = gateway.New(gwConfig)

	if err := a.setupRetrieval(ctx, opts, creds); err != nil {
		if opts.RequireRetrieval {
			a.Close()
			return nil, err
		}
		a.logger.Warn("retrieval disabled", "error", err)
	}

	var observer orchestrator.Observer
	if !opts.SkipIndexer && cfg.Indexer.Enabled {
		if err := a.setupIndexer(cfg); err != nil {
			a.Close()
			return nil, err
		}
		observer = a.pool
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Store:     a.Store,
		Model:     a.Gateway,
		Retriever: a.Retrieval,
		TopK:      int(cfg.Retrieval.TopK),
		Assembler: prompt.Assembler{MaxChars: int(cfg.Context.MaxChars)},
		Observer:  observer,
		Logger:    opts.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Searcher = search.NewSearcher(a.Retrieval, a.Orchestrator, opts.Logger)
	return a, nil
}

func (a *App) newStorageDriver(ctx context.Context, opts Options) (storage.Driver, error) {
	s := a.Config.Storage
	dir := s.Dir
	if (s.Driver == "" || s.Driver == "file") && dir == "" {
		var err error
		dir, err = dotdir.NewManager().Subdir(opts.ConfigDir, "conversations")
		if err != nil {
			return nil, err
		}
	}

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		Driver:           s.Driver,
		Dir:              dir,
		SQLitePath:       s.SQLitePath,
		PostgresDSN:      s.PostgresDSN,
		LibSQLURL:        s.LibSQLURL,
		GCSBucket:        s.GCSBucket,
		GCSPrefix:        s.GCSPrefix,
		DynamoDBTable:    s.DynamoDBTable,
		DynamoDBRegion:   s.DynamoDBRegion,
		DynamoDBEndpoint: s.DynamoDBEndpoint,
		Logger:           a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s conversation store: %w", s.Driver, err)
	}

	a.logger.Debug("conversation store ready", "driver", s.Driver, "dir", dir)
	return driver, nil
}

func gatewayConfig(cfg *config.Config, creds *credentials.Manager) (gateway.Config, error) {
	var timeout time.Duration
	if cfg.Model.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Model.Timeout)
		if err != nil {
			return gateway.Config{}, &gateway.ConfigurationError{
				Provider: cfg.Model.Provider,
				Err:      fmt.Errorf("invalid model.timeout %q: %w", cfg.Model.Timeout, err),
			}
		}
	}

	gw := gateway.Config{
		Primary: provider.Config{
			Provider: cfg.Model.Provider,
			Model:    cfg.Model.Model,
			BaseURL:  cfg.Model.BaseURL,
			APIKey:   cfg.Model.APIKey,
			Timeout:  timeout,
		},
		Extra:       cfg.Model.Extra,
		Credentials: creds,
	}

	if fb := cfg.Model.Fallback; fb.Provider != "" {
		gw.Fallback = &provider.Config{
			Provider: fb.Provider,
			Model:    fb.Model,
			BaseURL:  fb.BaseURL,
			Timeout:  timeout,
		}
	}
	return gw, nil
}

func (a *App) setupRetrieval(ctx context.Context, opts Options, creds *credentials.Manager) error {
	cfg := a.Config
	if !cfg.Retrieval.Enabled || cfg.VectorStore.Provider == "" || cfg.Embedding.Provider == "" {
		return errors.New("retrieval is not configured")
	}

	apiKey, _, err := creds.Resolve(cfg.Embedding.Provider, "")
	if err != nil {
		return err
	}

	embedder, err := embeddingutils.NewEmbedder(ctx, &embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       apiKey,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	target := cfg.VectorStore.Target
	if cfg.VectorStore.Provider == "sqlite" && target == "" {
		dir, err := dotdir.NewManager().Target(opts.ConfigDir)
		if err != nil {
			return err
		}
		target = filepath.Join(dir, "vectors.db")
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    target,
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	a.vectors = vectors

	a.Retrieval = retrieval.New(retrieval.Config{
		Embedder:     embedder,
		Driver:       vectors,
		ChunkSize:    int(cfg.Retrieval.ChunkSize),
		ChunkOverlap: int(cfg.Retrieval.ChunkOverlap),
		Logger:       a.logger,
	})

	a.logger.Debug("retrieval ready",
		"vector_store", cfg.VectorStore.Provider,
		"embedding", cfg.Embedding.Provider,
	)
	return nil
}

func (a *App) setupIndexer(cfg *config.Config) error {
	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.EventStream.Provider,
		Brokers:      cfg.EventStream.Brokers,
		Topic:        cfg.EventStream.Topic,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating eventstream publisher: %w", err)
	}
	a.publisher = publisher

	wc := &worker.Config{
		Publisher:  publisher,
		Source:     eventstream.EventSource{Service: "parley", Provider: cfg.Model.Provider},
		NumWorkers: cfg.Indexer.Workers,
		QueueSize:  cfg.Indexer.QueueSize,
		Logger:     a.logger,
	}
	if a.Retrieval.Enabled() {
		wc.Indexer = a.Retrieval
	}

	a.pool, err = worker.NewPool(wc)
	return err
}

// Close drains background work and releases every backend.
func (a *App) Close() error {
	var errs []error
	switch {
	case a.Orchestrator != nil:
		errs = append(errs, a.Orchestrator.Close())
	case a.Gateway != nil:
		errs = append(errs, a.Gateway.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
