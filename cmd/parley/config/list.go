package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
)

const listLongDesc string = `List all configuration values.

Prints every key grouped by section. By default the values come from
config.toml with defaults filled in. With --effective, PARLEY_* environment
variables are applied too, showing what serve and chat would actually use.

Secrets (API keys and database connection strings) are masked.

Examples:
  parley config list
  PARLEY_MODEL_PROVIDER=doubao parley config list --effective`

const listShortDesc string = "List all configuration values"

const masked = "********"

func newListCmd() *cobra.Command {
	var effective bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, effective)
		},
	}
	cmd.Flags().BoolVar(&effective, "effective", false, "Apply PARLEY_* environment overrides")

	return cmd
}

func runList(w io.Writer, configDir string, effective bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger.Path())

	cfg, err := listSource(cfger, configDir, effective)
	if err != nil {
		return err
	}

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	section := ""
	for _, key := range keys {
		if s, _, _ := strings.Cut(key, "."); s != section {
			section = s
			fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("["+section+"]"))
		}

		value, err := cfg.Value(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "    %-*s  %s\n", width, key, renderValue(key, value))
	}
	fmt.Fprintln(w)
	return nil
}

func listSource(cfger *config.Configer, configDir string, effective bool) (*config.Config, error) {
	if !effective {
		return cfger.LoadConfig()
	}
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

func renderValue(key, value string) string {
	switch {
	case value == "":
		return cliui.DimStyle.Render("<not set>")
	case isSecret(key):
		return cliui.DimStyle.Render(masked)
	default:
		return cliui.ValueStyle.Render(value)
	}
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "_dsn")
}
