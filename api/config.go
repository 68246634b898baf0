// Package api provides the HTTP API for generating replies, browsing stored
// conversations, searching memory and feeding live viewer messages.
package api

import (
	"time"

	"github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/live"
	"github.com/papercomputeco/parley/pkg/orchestrator"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	Orchestrator *orchestrator.Orchestrator

	// Searcher backs /v1/search and the search_memory MCP tool. Optional.
	Searcher *search.Searcher

	// Live backs /v1/live/messages. Optional.
	Live *live.Dispatcher

	// DisableMCP skips mounting the MCP endpoint.
	DisableMCP bool

	// RequestTimeout cancels a request's context once it elapses. Zero
	// means requests are only cancelled by Shutdown.
	RequestTimeout time.Duration
}
