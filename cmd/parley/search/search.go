// Package searchcmder provides the search command for semantic search over
// stored conversations and ingested documents.
package searchcmder

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	apisearch "github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	roleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const requestTimeout = 30 * time.Second

type searchCommander struct {
	query          string
	topK           uint
	userID         string
	conversationID string
	source         string
	quiet          bool

	apiTarget string
}

const searchLongDesc string = `Search memory via the parley API.

Returns the stored turns and ingested document chunks most similar to the
query. Requires a running parley API server with retrieval configured
(vector store and embedder).

Turn hits show the conversation they belong to. Use --quiet to print only
conversation ids, one per line.

Examples:
  parley search "what did we decide about the launch date"
  parley search "favourite food" --user viewer-42
  parley search "pricing" --source handbook.md --top-k 10
  parley search "deployment" --api-target http://localhost:8081`

const searchShortDesc string = "Search stored conversations and documents"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagAPITarget})
			cmder.apiTarget = v.GetString("client.api_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().UintVarP(&cmder.topK, "top-k", "k", apisearch.DefaultTopK, "Number of results to return")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "Only match turns of this user id")
	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Only match turns of this conversation")
	cmd.Flags().StringVar(&cmder.source, "source", "", "Only match chunks of this ingested source")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only conversation ids, one per line (for piping)")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, w io.Writer) error {
	output, err := SearchAPI(ctx, c.apiTarget, apisearch.SearchInput{
		Query:          c.query,
		TopK:           int(c.topK),
		UserID:         c.userID,
		ConversationID: c.conversationID,
		Source:         c.source,
	})
	if err != nil {
		return err
	}

	if output.Count == 0 {
		if !c.quiet {
			fmt.Fprintln(w, "No results found.")
		}
		return nil
	}

	if c.quiet {
		seen := make(map[string]bool)
		for _, result := range output.Results {
			if result.ConversationID == "" || seen[result.ConversationID] {
				continue
			}
			seen[result.ConversationID] = true
			fmt.Fprintln(w, result.ConversationID)
		}
		return nil
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
	)
	for i, result := range output.Results {
		printResult(w, i+1, result)
	}
	return nil
}

func printResult(w io.Writer, rank int, result apisearch.SearchResult) {
	origin := result.ConversationID
	if result.Source != "" {
		origin = result.Source
	}
	fmt.Fprintf(w, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		idStyle.Render(origin),
	)

	label := result.Role
	if label == "" {
		label = "chunk"
	}
	fmt.Fprintf(w, "  %s %s\n", roleStyle.Render(label+":"), previewStyle.Render(flatten(result.Preview, 80)))

	if n := len(result.Conversation); n > 0 {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(fmt.Sprintf("%d turns", n)))
		for _, turn := range result.Conversation {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(" ├─ Human:"), flatten(turn.Human, 60))
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(" │  AI:"), dimStyle.Render(flatten(turn.AI, 60)))
		}
	}

	fmt.Fprintln(w)
}

func flatten(s string, n int) string {
	return utils.Truncate(strings.ReplaceAll(s, "\n", " "), n)
}

type apiError struct {
	Error string `json:"error"`
}

// SearchAPI calls the parley search API and returns the parsed output.
func SearchAPI(ctx context.Context, apiTarget string, in apisearch.SearchInput) (*apisearch.SearchOutput, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiTarget, "/")).
		SetHeader("User-Agent", utils.UserAgent()).
		SetTimeout(requestTimeout)

	var (
		output  apisearch.SearchOutput
		failure apiError
	)
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(in).
		SetResult(&output).
		SetError(&failure).
		Post("/v1/search")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to parley API at %s: %w", apiTarget, err)
	}

	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode(), msg)
	}

	return &output, nil
}
