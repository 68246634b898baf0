// Package historycmder provides the history command for browsing stored
// conversations.
package historycmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/utils"
)

const previewLen = 60

type historyCommander struct {
	storage    string
	storageDir string
	sqlitePath string
	jsonOut    bool

	debug     bool
	configDir string
	logger    *slog.Logger
}

var storageFlags = []string{
	config.FlagStorageDriver,
	config.FlagStorageDir,
	config.FlagSQLite,
}

const historyLongDesc string = `Browse stored conversations.

Without arguments, lists every stored conversation id with its turn count.
With an id, prints the turns of that conversation in order.

Examples:
  parley history
  parley history 3f2a9c1e-7d4b-4a9e-9c61-2b8f0e5d1a77
  parley history 3f2a9c1e-7d4b-4a9e-9c61-2b8f0e5d1a77 --json`

const historyShortDesc string = "Browse stored conversations"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, storageFlags)
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), cfg, id)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDir, &cmder.storageDir)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &cmder.sqlitePath)
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the stored record as JSON")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, w io.Writer, cfg *config.Config, id string) error {
	c.logger = logger.Nop()
	if c.debug {
		c.logger = logger.New(logger.WithDebug(true), logger.WithFormat(logger.FormatPretty), logger.WithWriter(os.Stderr))
	}

	// Browsing never needs memory retrieval or the turn indexer.
	cfg.Retrieval.Enabled = false
	a, err := app.Build(ctx, cfg, app.Options{
		ConfigDir:   c.configDir,
		SkipIndexer: true,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if id == "" {
		return c.list(ctx, w, a)
	}
	return c.show(ctx, w, a, id)
}

func (c *historyCommander) list(ctx context.Context, w io.Writer, a *app.App) error {
	ids, err := a.Orchestrator.Conversations(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Fprintf(w, "\n  %s No stored conversations.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.HeaderStyle.Render("Conversations"))
	for _, id := range ids {
		record, err := a.Orchestrator.History(ctx, id)
		if err != nil {
			return err
		}

		preview := ""
		if n := record.Len(); n > 0 {
			preview = utils.Truncate(record.Turns[n-1].Human, previewLen)
		}
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.IDStyle.Render(id),
			cliui.DimStyle.Render(fmt.Sprintf("%3d turns", record.Len())),
			preview,
		)
	}
	fmt.Fprintln(w)
	return nil
}

func (c *historyCommander) show(ctx context.Context, w io.Writer, a *app.App, id string) error {
	record, err := a.Orchestrator.History(ctx, id)
	if err != nil {
		return err
	}

	if c.jsonOut {
		data, err := record.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if record.Len() == 0 {
		fmt.Fprintf(w, "\n  %s No turns stored for %s.\n\n", cliui.DimStyle.Render("●"), cliui.IDStyle.Render(id))
		return nil
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.HeaderStyle.Render("Conversation"), cliui.IDStyle.Render(id))
	for i, turn := range record.Turns {
		fmt.Fprintf(w, "  %s %s\n", cliui.DimStyle.Render(fmt.Sprintf("#%d", i+1)), cliui.KeyStyle.Render("Human:"))
		fmt.Fprintf(w, "     %s\n", turn.Human)
		fmt.Fprintf(w, "     %s\n", cliui.KeyStyle.Render("AI:"))
		fmt.Fprintf(w, "     %s\n\n", turn.AI)
	}
	return nil
}
