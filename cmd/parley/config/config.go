// Package configcmder provides the config command for managing persistent
// parley configuration stored in the .parley/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent parley configuration.

Configuration is stored as config.toml in the .parley/ directory and provides
default values for command flags. Environment variables (PARLEY_MODEL_PROVIDER,
PARLEY_API_LISTEN, ...) override the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure, for example:
  model.provider, model.model, model.base_url, model.timeout,
  storage.driver, storage.dir, storage.sqlite_path,
  retrieval.enabled, retrieval.top_k, context.max_chars,
  vector_store.provider, embedding.provider, eventstream.provider,
  live.prompt_dir, live.persona

Run "parley config list" for every key.

Use subcommands to get, set, or list configuration values:
  parley config set <key> <value>    Set a configuration value
  parley config get <key>            Get a configuration value
  parley config list                 List all configuration values

Examples:
  parley config set model.provider doubao
  parley config set model.model ep-20240611-xxxxx
  parley config set retrieval.top_k 5
  parley config get model.provider
  parley config list`

const configShortDesc string = "Manage persistent parley configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
