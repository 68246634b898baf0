// Package chatcmder provides the chat command for an interactive conversation
// in the terminal.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/utils"
)

const historyFile = "chat_history"

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("parley> ")
)

type chatCommander struct {
	provider       string
	model          string
	baseURL        string
	storage        string
	storageDir     string
	conversationID string
	userID         string
	fresh          bool
	plain          bool
	topK           uint

	debug     bool
	configDir string
	logger    *slog.Logger
}

var (
	stringFlags = []string{
		config.FlagProvider,
		config.FlagModel,
		config.FlagBaseURL,
		config.FlagStorageDriver,
		config.FlagStorageDir,
	}
	uintFlags = []string{
		config.FlagTopK,
	}
)

const chatLongDesc string = `Start an interactive conversation in the terminal.

Each message is sent through the same pipeline as the API: prior turns of the
conversation are replayed into the prompt, relevant memory is retrieved when
configured, and the completed turn is stored.

The last conversation is resumed unless --new or --conversation is given.
Replies are rendered as markdown when stdout is a terminal.

Examples:
  parley chat
  parley chat --new
  parley chat --conversation 3f2a9c1e-...
  parley chat --provider ollama --model llama3.2`

const chatShortDesc string = "Interactive conversation in the terminal"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
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

			return cmder.run(cmd.Context(), cfg)
		},
	}

	targets := map[string]*string{
		config.FlagProvider:      &cmder.provider,
		config.FlagModel:         &cmder.model,
		config.FlagBaseURL:       &cmder.baseURL,
		config.FlagStorageDriver: &cmder.storage,
		config.FlagStorageDir:    &cmder.storageDir,
	}
	for _, key := range stringFlags {
		config.AddStringFlag(cmd, config.Registry, key, targets[key])
	}
	config.AddUintFlag(cmd, config.Registry, config.FlagTopK, &cmder.topK)

	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Conversation id to continue")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User id recorded with each turn")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming the last one")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print replies without markdown rendering")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cfg *config.Config) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(os.Stderr),
	)

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

	ddm := dotdir.NewManager()
	state, err := ddm.LoadSession(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	id := resolveConversation(c.conversationID, c.fresh, state)

	fmt.Println()
	if id != "" {
		record, err := a.Orchestrator.History(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.IDStyle.Render(utils.Truncate(id, 8)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", record.Len())),
		)
	} else {
		fmt.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	if err := cliui.Step(os.Stderr, "Connecting to "+cfg.Model.Provider, func() error {
		return a.Orchestrator.Init(ctx)
	}); err != nil {
		return err
	}

	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(modelLabel(cfg)),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit, /new to start over."))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          userPrompt,
		HistoryFile:     c.historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	pretty := !c.plain && cliui.IsTerminal(os.Stdout)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Println()
			return nil
		case "/new":
			id = ""
			if err := ddm.ClearSession(c.configDir); err != nil {
				c.logger.Warn("clearing session state", "error", err)
			}
			fmt.Printf("  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		res, err := c.send(ctx, a.Orchestrator, input, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n\n", cliui.FailMark, err)
			continue
		}

		id = res.ConversationID
		if err := ddm.SaveSession(&dotdir.SessionState{
			ConversationID: id,
			UpdatedAt:      time.Now(),
		}, c.configDir); err != nil {
			c.logger.Warn("saving session state", "error", err)
		}

		renderReply(os.Stdout, res.Response, pretty)
	}

	fmt.Println()
	return nil
}

// send runs one generation behind a spinner.
func (c *chatCommander) send(ctx context.Context, o *orchestrator.Orchestrator, input, id string) (*orchestrator.Result, error) {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " thinking"
	s.Start()
	defer s.Stop()

	var opts []orchestrator.GenerateOption
	if c.userID != "" {
		opts = append(opts, orchestrator.WithUserID(c.userID))
	}
	return o.Generate(ctx, input, id, opts...)
}

func (c *chatCommander) historyPath() string {
	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, historyFile)
}

// resolveConversation picks the conversation to continue: an explicit id,
// then the saved session unless a fresh start was requested.
func resolveConversation(explicit string, fresh bool, state *dotdir.SessionState) string {
	if explicit != "" {
		return explicit
	}
	if fresh || state == nil {
		return ""
	}
	return state.ConversationID
}

func renderReply(w io.Writer, reply string, pretty bool) {
	if pretty {
		if rendered, err := cliui.RenderMarkdown(reply); err == nil {
			fmt.Fprintf(w, "%s\n%s\n", assistantPrompt, strings.TrimRight(rendered, "\n"))
			return
		}
	}
	fmt.Fprintf(w, "%s%s\n\n", assistantPrompt, reply)
}

func modelLabel(cfg *config.Config) string {
	if cfg.Model.Model == "" {
		return cfg.Model.Provider
	}
	return cfg.Model.Provider + "/" + cfg.Model.Model
}
