// Package initcmder provides the init command for initializing a local
// .parley directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/utils"
)

const (
	configFile = "config.toml"

	fetchTimeout = 15 * time.Second
)

const initLongDesc string = `Initialize a new .parley/ directory in the current working directory.

Creates a local .parley/ directory that takes precedence over the default
~/.parley/ directory for configuration, credentials, stored conversations
and the chat session.

A config.toml with default values is written when none exists. Use --preset
to write one tuned for a model provider, or pass a URL to fetch a shared
config.toml. A preset always overwrites an existing config.toml.

Presets: anthropic, doubao, gemini, ollama, openai, zhipu

Examples:
  parley init
  parley init --preset zhipu
  parley init --preset https://example.com/team/config.toml`

const initShortDesc string = "Initialize a local .parley/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset or URL of a config.toml")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	// Resolve the preset before touching the filesystem so a bad name or URL
	// leaves nothing behind.
	var cfg *config.Config
	if preset != "" {
		cfg, err = resolvePreset(preset)
		if err != nil {
			return err
		}
	}

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.DimStyle.Render("●"), dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .parley directory: %w", err)
		}
		fmt.Fprintf(w, "  %s Initialized .parley directory: %s\n", cliui.SuccessMark, dir)
	}

	path := filepath.Join(dir, configFile)
	if cfg == nil {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		cfg = config.NewDefaultConfig()
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Wrote %s %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(path),
		cliui.DimStyle.Render("(model: "+cfg.Model.Provider+")"),
	)
	return nil
}

// resolvePreset returns a named preset or fetches a config.toml from a URL.
func resolvePreset(preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	resp, err := resty.New().
		SetTimeout(fetchTimeout).
		SetHeader("User-Agent", utils.UserAgent()).
		R().
		Get(preset)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode())
	}

	cfg, err := config.ParseConfigTOML(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parsing remote config: %w", err)
	}
	return cfg, nil
}
