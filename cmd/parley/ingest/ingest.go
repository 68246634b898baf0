// Package ingestcmder provides the ingest command that chunks documents into
// the retrieval store.
package ingestcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
)

type ingestCommander struct {
	vectorProv   string
	vectorTarget string
	embedProv    string
	embedTarget  string
	embedModel   string
	embedDims    uint
	source       string

	debug     bool
	configDir string
	logger    *slog.Logger
}

var (
	stringFlags = []string{
		config.FlagVectorStoreProv,
		config.FlagVectorStoreTgt,
		config.FlagEmbeddingProv,
		config.FlagEmbeddingTgt,
		config.FlagEmbeddingModel,
	}
	uintFlags = []string{
		config.FlagEmbeddingDims,
	}
)

const ingestLongDesc string = `Ingest documents into retrieval memory.

Each file is split into overlapping chunks (retrieval.chunk_size and
retrieval.chunk_overlap), embedded and stored in the configured vector
store. Chunks are tagged with their source so later generations can cite them
and searches can filter on them.

Use "-" to read a single document from stdin together with --source.

Examples:
  parley ingest handbook.md faq.txt
  cat notes.txt | parley ingest - --source notes
  parley ingest docs/*.md --vector-store-provider qdrant --vector-store-target localhost:6334`

const ingestShortDesc string = "Ingest documents into retrieval memory"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, append(stringFlags, uintFlags...))
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg, args)
		},
	}

	targets := map[string]*string{
		config.FlagVectorStoreProv: &cmder.vectorProv,
		config.FlagVectorStoreTgt:  &cmder.vectorTarget,
		config.FlagEmbeddingProv:   &cmder.embedProv,
		config.FlagEmbeddingTgt:    &cmder.embedTarget,
		config.FlagEmbeddingModel:  &cmder.embedModel,
	}
	for _, key := range stringFlags {
		config.AddStringFlag(cmd, config.Registry, key, targets[key])
	}
	config.AddUintFlag(cmd, config.Registry, config.FlagEmbeddingDims, &cmder.embedDims)
	cmd.Flags().StringVar(&cmder.source, "source", "", "Source name for a single document (defaults to the file name)")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, stdin io.Reader, w io.Writer, cfg *config.Config, paths []string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(os.Stderr),
	)

	if c.source != "" && len(paths) > 1 {
		return fmt.Errorf("--source applies to a single document, got %d", len(paths))
	}

	cfg.Retrieval.Enabled = true
	a, err := app.Build(ctx, cfg, app.Options{
		ConfigDir:        c.configDir,
		RequireRetrieval: true,
		SkipIndexer:      true,
		Logger:           c.logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(w)
	total := 0
	for _, path := range paths {
		source, text, err := c.read(stdin, path)
		if err != nil {
			return err
		}

		var n int
		err = cliui.Step(w, "Ingesting "+source, func() error {
			var ierr error
			n, ierr = a.Retrieval.Ingest(ctx, source, text)
			return ierr
		})
		if err != nil {
			return err
		}
		total += n
	}

	fmt.Fprintf(w, "\n  %s Stored %s from %d document(s)\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprintf("%d chunks", total)),
		len(paths),
	)
	return nil
}

func (c *ingestCommander) read(stdin io.Reader, path string) (string, string, error) {
	if path == "-" {
		if c.source == "" {
			return "", "", fmt.Errorf("--source is required when reading from stdin")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return c.source, string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}

	source := filepath.Base(path)
	if c.source != "" {
		source = c.source
	}
	return source, string(data), nil
}
