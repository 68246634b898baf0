// Package mcp provides an MCP (Model Context Protocol) server exposing
// conversation generation and memory search as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/utils"
)

// Generator is implemented by *orchestrator.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, prompt, conversationID string, opts ...orchestrator.GenerateOption) (*orchestrator.Result, error)
}

type Config struct {
	// Generator answers the generate tool.
	Generator Generator

	// Searcher answers the search_memory tool. The tool is only registered
	// when search is enabled.
	Searcher *search.Searcher

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the generate and search tools.
func NewServer(c Config) (*Server, error) {
	if c.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "parley",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        generateToolName,
		Description: generateDescription,
	}, s.handleGenerate)

	if c.Searcher.Enabled() {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)
	}

	s.mcpServer = mcpServer

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
