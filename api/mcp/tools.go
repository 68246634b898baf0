package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/orchestrator"
)

var (
	generateToolName    = "generate"
	generateDescription = "Continue a conversation. Sends the prompt together with the conversation's stored history and any relevant memory to the model, records the exchange, and returns the reply. Omit conversation_id to start a new conversation."

	searchToolName    = "search_memory"
	searchDescription = "Search conversation memory and ingested documents using semantic search. Returns the most relevant passages, each with the full conversation it came from when applicable."
)

// GenerateInput represents the input arguments for the generate tool.
type GenerateInput struct {
	Prompt         string `json:"prompt" jsonschema:"the user message to answer"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"the conversation to continue; a new one is started when empty"`
	UserID         string `json:"user_id,omitempty" jsonschema:"optional id of the user sending the message"`
}

// SearchInput represents the input arguments for the search_memory tool.
type SearchInput struct {
	Query          string `json:"query" jsonschema:"the search query text"`
	TopK           int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
	UserID         string `json:"user_id,omitempty" jsonschema:"only return memories of this user"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"only return memories of this conversation"`
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, orchestrator.Result, error) {
	s.config.Logger.Debug("MCP generate request", "conversation_id", input.ConversationID)

	res, err := s.config.Generator.Generate(ctx, input.Prompt, input.ConversationID,
		orchestrator.WithUserID(input.UserID),
	)
	if err != nil {
		s.config.Logger.Error("MCP generate failed", "error", err)
		return errorResult(fmt.Sprintf("Generation failed: %v", err)), orchestrator.Result{}, nil
	}

	return jsonResult(s, *res)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	out, err := s.config.Searcher.Search(ctx, search.SearchInput{
		Query:          input.Query,
		TopK:           input.TopK,
		UserID:         input.UserID,
		ConversationID: input.ConversationID,
	})
	if err != nil {
		s.config.Logger.Error("MCP search failed", "error", err)
		return errorResult(fmt.Sprintf("Search failed: %v", err)), search.SearchOutput{}, nil
	}

	return jsonResult(s, *out)
}

// jsonResult returns structured output along with its JSON serialization in
// a text block for clients that ignore structured content.
func jsonResult[T any](s *Server, out T) (*mcp.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", "error", err)
		var zero T
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
