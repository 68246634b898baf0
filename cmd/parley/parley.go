// Package parleycmder
package parleycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/parley/cmd/parley/auth"
	chatcmder "github.com/papercomputeco/parley/cmd/parley/chat"
	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	historycmder "github.com/papercomputeco/parley/cmd/parley/history"
	ingestcmder "github.com/papercomputeco/parley/cmd/parley/ingest"
	initcmder "github.com/papercomputeco/parley/cmd/parley/init"
	searchcmder "github.com/papercomputeco/parley/cmd/parley/search"
	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	versioncmder "github.com/papercomputeco/parley/cmd/version"
)

const parleyLongDesc string = `Parley is a conversational service with persistent, per-conversation memory.

Every turn is stored under a conversation id, replayed into the next prompt
and optionally indexed for retrieval across conversations.

Get started:
  parley init --preset zhipu   Create a local .parley/ directory
  parley auth zhipu            Store an API key
  parley chat                  Chat in the terminal
  parley serve                 Run the API server`

const parleyShortDesc string = "Parley - conversations with memory"

func NewParleyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "parley",
		Short:        parleyShortDesc,
		Long:         parleyLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
