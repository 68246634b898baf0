// Package authcmder provides the auth command for storing API credentials.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/credentials"
)

const authLongDesc string = `Store API credentials for model providers.

Credentials are stored in credentials.toml in the .parley/ directory. A key
set in config.toml (model.api_key) takes precedence, and the provider's
environment variable is used when neither is present.

Supported providers: anthropic, doubao, gemini, openai, zhipu

Examples:
  parley auth zhipu               Prompt for a Zhipu API key
  parley auth doubao              Prompt for a Doubao (Volcengine Ark) API key
  parley auth --list              List stored credentials
  parley auth --remove openai     Remove stored OpenAI credentials
  echo $KEY | parley auth gemini  Pipe API key from stdin`

const authShortDesc string = "Store API credentials for model providers"

type authCommander struct {
	configDir string
	list      bool
	remove    string

	in  io.Reader
	out io.Writer
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.in, cmder.out = cmd.InOrStdin(), cmd.OutOrStdout()

			mgr, err := credentials.NewManager(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			switch {
			case cmder.list:
				return cmder.runList(mgr)
			case cmder.remove != "":
				return cmder.runRemove(mgr, normalize(cmder.remove))
			case len(args) == 0:
				return fmt.Errorf("provider argument required\n\nSupported providers: %s", supported())
			default:
				return cmder.runStore(mgr, normalize(args[0]))
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&cmder.list, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&cmder.remove, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func supported() string {
	return strings.Join(credentials.SupportedProviders(), ", ")
}

func (c *authCommander) runStore(mgr *credentials.Manager, provider string) error {
	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s", provider, supported())
	}

	key, err := readAPIKey(c.in, c.out, provider)
	if err != nil {
		return err
	}
	if key = strings.TrimSpace(key); key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := mgr.SetKey(provider, key); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(provider),
		cliui.DimStyle.Render("(overrides "+credentials.EnvVarForProvider(provider)+")"),
	)
	return nil
}

// runList prints every key-taking provider with where its key would come
// from right now.
func (c *authCommander) runList(mgr *credentials.Manager) error {
	f, err := mgr.Load()
	if err != nil {
		return err
	}

	if len(f.Providers) == 0 {
		fmt.Fprintf(c.out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(c.out, "  Use 'parley auth <provider>' to store credentials.\n")
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Provider keys"))
	for _, p := range credentials.SupportedProviders() {
		env := credentials.EnvVarForProvider(p)
		_, src, err := mgr.Resolve(p, "")
		if err != nil {
			return err
		}

		var status string
		switch src {
		case credentials.SourceStored:
			status = "stored"
			if at := f.Providers[p].SetAt; !at.IsZero() {
				status += " " + at.Local().Format("2006-01-02")
			}
			status = cliui.ValueStyle.Render(status) + cliui.DimStyle.Render("  (overrides "+env+")")
		case credentials.SourceEnv:
			status = cliui.ValueStyle.Render("from env") + cliui.DimStyle.Render("  "+env)
		default:
			status = cliui.DimStyle.Render("not set  " + env)
		}

		mark := cliui.SuccessMark
		if src == credentials.SourceNone {
			mark = cliui.DimStyle.Render("·")
		}
		fmt.Fprintf(c.out, "  %s  %-10s %s\n", mark, cliui.NameStyle.Render(p), status)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *authCommander) runRemove(mgr *credentials.Manager, provider string) error {
	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(provider))
	return nil
}

// readAPIKey prompts with hidden input when in is a terminal and reads the
// first line otherwise.
func readAPIKey(in io.Reader, w io.Writer, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(w, "Enter API key for %s (%s): ", provider, credentials.EnvVarForProvider(provider))
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(key), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	switch {
	case err == nil, errors.Is(err, io.EOF) && line != "":
		return line, nil
	case errors.Is(err, io.EOF):
		return "", errors.New("no input received on stdin")
	default:
		return "", fmt.Errorf("reading stdin: %w", err)
	}
}
