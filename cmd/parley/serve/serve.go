// Package servecmder provides the serve command that runs the parley API
// server, optionally with the live viewer dispatcher.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/api"
	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/live"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/prompt"
)

type serveCommander struct {
	listen       string
	provider     string
	model        string
	baseURL      string
	storage      string
	storageDir   string
	sqlitePath   string
	postgresDSN  string
	vectorProv   string
	vectorTarget string
	embedProv    string
	embedTarget  string
	embedModel   string
	eventstream  string
	kafkaBrokers string
	promptDir    string
	topK         uint
	maxChars     uint
	embedDims    uint

	live       bool
	liveStdout bool
	noMCP      bool
	jsonLogs   bool
	logFile    string

	debug     bool
	configDir string
	logger    *slog.Logger
}

// stringFlags and uintFlags are the registry keys serve exposes.
var (
	stringFlags = []string{
		config.FlagAPIListen,
		config.FlagProvider,
		config.FlagModel,
		config.FlagBaseURL,
		config.FlagStorageDriver,
		config.FlagStorageDir,
		config.FlagSQLite,
		config.FlagPostgres,
		config.FlagVectorStoreProv,
		config.FlagVectorStoreTgt,
		config.FlagEmbeddingProv,
		config.FlagEmbeddingTgt,
		config.FlagEmbeddingModel,
		config.FlagEventStreamProv,
		config.FlagKafkaBrokers,
		config.FlagPromptDir,
	}
	uintFlags = []string{
		config.FlagTopK,
		config.FlagMaxChars,
		config.FlagEmbeddingDims,
	}
)

const serveLongDesc string = `Run the parley API server.

The server exposes:
  POST /v1/generate              Generate a reply within a conversation
  GET  /v1/conversations         List stored conversation ids
  GET  /v1/conversations/:id     Show the turns of one conversation
  POST /v1/search                Search indexed memory
  POST /v1/live/messages         Queue a live viewer message (with --live)
  /mcp                           MCP tools over streamable HTTP

Flags override environment variables (PARLEY_*), which override
config.toml in the .parley/ directory.

Examples:
  parley serve
  parley serve --provider ollama --model llama3.2 --listen :9000
  parley serve --live --prompt-dir ./prompts
  parley serve --eventstream kafka --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the parley API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfg, err := loadConfig(cmd, cmder.configDir)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	targets := map[string]*string{
		config.FlagAPIListen:       &cmder.listen,
		config.FlagProvider:        &cmder.provider,
		config.FlagModel:           &cmder.model,
		config.FlagBaseURL:         &cmder.baseURL,
		config.FlagStorageDriver:   &cmder.storage,
		config.FlagStorageDir:      &cmder.storageDir,
		config.FlagSQLite:          &cmder.sqlitePath,
		config.FlagPostgres:        &cmder.postgresDSN,
		config.FlagVectorStoreProv: &cmder.vectorProv,
		config.FlagVectorStoreTgt:  &cmder.vectorTarget,
		config.FlagEmbeddingProv:   &cmder.embedProv,
		config.FlagEmbeddingTgt:    &cmder.embedTarget,
		config.FlagEmbeddingModel:  &cmder.embedModel,
		config.FlagEventStreamProv: &cmder.eventstream,
		config.FlagKafkaBrokers:    &cmder.kafkaBrokers,
		config.FlagPromptDir:       &cmder.promptDir,
	}
	for _, key := range stringFlags {
		config.AddStringFlag(cmd, config.Registry, key, targets[key])
	}
	config.AddUintFlag(cmd, config.Registry, config.FlagTopK, &cmder.topK)
	config.AddUintFlag(cmd, config.Registry, config.FlagMaxChars, &cmder.maxChars)
	config.AddUintFlag(cmd, config.Registry, config.FlagEmbeddingDims, &cmder.embedDims)

	cmd.Flags().BoolVar(&cmder.live, "live", false, "Answer live viewer messages posted to /v1/live/messages")
	cmd.Flags().BoolVar(&cmder.liveStdout, "live-stdout", false, "Print live replies to stdout instead of the log")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP endpoint")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit JSON structured logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command, configDir string) (*config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	keys := make([]string, 0, len(stringFlags)+len(uintFlags))
	keys = append(keys, stringFlags...)
	keys = append(keys, uintFlags...)
	config.BindRegisteredFlags(v, cmd, config.Registry, keys)

	return config.FromViper(v)
}

// setupLogger builds the console logger and, with --log-file, tees it into
// a JSON file that always records debug output.
func (c *serveCommander) setupLogger() (func(), error) {
	format := logger.FormatPretty
	if c.jsonLogs {
		format = logger.FormatJSON
	}
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithFormat(format))
	if c.logFile == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.Tee(c.logger, logger.New(
		logger.WithWriter(f),
		logger.WithFormat(logger.FormatJSON),
		logger.WithDebug(true),
	))
	return func() { _ = f.Close() }, nil
}

func (c *serveCommander) run(parent context.Context, cfg *config.Config) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	var requestTimeout time.Duration
	if cfg.API.RequestTimeout != "" {
		requestTimeout, err = time.ParseDuration(cfg.API.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid api.request_timeout %q: %w", cfg.API.RequestTimeout, err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{
		ConfigDir: c.configDir,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Error("closing service", "error", err)
		}
	}()

	if err := a.Orchestrator.Init(ctx); err != nil {
		// The next generate call retries.
		c.logger.Warn("model not ready", "provider", cfg.Model.Provider, "error", err)
	}

	apiConfig := api.Config{
		ListenAddr:     cfg.API.Listen,
		Orchestrator:   a.Orchestrator,
		Searcher:       a.Searcher,
		DisableMCP:     c.noMCP,
		RequestTimeout: requestTimeout,
	}

	if c.live {
		dispatcher, closeLive, err := c.newDispatcher(a, cfg)
		if err != nil {
			return err
		}
		defer closeLive()
		apiConfig.Live = dispatcher
	}

	server, err := api.NewServer(apiConfig, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return server.Shutdown()
	}
}

func (c *serveCommander) newDispatcher(a *app.App, cfg *config.Config) (*live.Dispatcher, func(), error) {
	loader, err := prompt.NewLoader(cfg.Live.PromptDir, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading prompt templates: %w", err)
	}

	var sink live.Sink = live.NewLogSink(c.logger)
	if c.liveStdout {
		sink = live.NewWriterSink(os.Stdout)
	}

	dispatcher, err := live.NewDispatcher(&live.Config{
		Generator:  a.Orchestrator,
		Templates:  loader,
		Persona:    cfg.Live.Persona,
		Sink:       sink,
		NumWorkers: cfg.Live.Workers,
		QueueSize:  cfg.Live.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, nil, errors.Join(err, loader.Close())
	}

	c.logger.Info("live dispatcher started",
		"persona", cfg.Live.Persona,
		"prompt_dir", cfg.Live.PromptDir,
		"workers", cfg.Live.Workers,
	)

	return dispatcher, func() {
		dispatcher.Close()
		_ = loader.Close()
	}, nil
}
