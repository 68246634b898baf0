package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/api/mcp"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Server is the API server for the conversation service.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App

	// base parents every request context and is cancelled by Shutdown.
	base   context.Context
	cancel context.CancelFunc
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error          string `json:"error"`
	Stage          string `json:"stage,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// NewServer creates a new API server and registers its routes.
func NewServer(config Config, log *slog.Logger) (*Server, error) {
	if config.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	// Handlers pass ids from the path and body into the conversation
	// store cache, so values must not alias fasthttp's pooled buffers.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		logger: log,
		app:    app,
		base:   base,
		cancel: cancel,
	}

	app.Use(s.requestContext)
	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/generate", s.handleGenerate)
	v1.Get("/conversations", s.handleListConversations)
	v1.Get("/conversations/:id", s.handleGetConversation)
	v1.Post("/search", s.handleSearchEndpoint)
	v1.Post("/live/messages", s.handleLiveMessage)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Generator: config.Orchestrator,
			Searcher:  config.Searcher,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown cancels in-flight requests and shuts down the API server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

// requestContext gives each request a context bounded by the server's
// lifetime and the configured request timeout. fasthttp does not report
// client disconnects, so these are the only cancellation sources.
func (s *Server) requestContext(c *fiber.Ctx) error {
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()
	if s.config.RequestTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer stop()
	}

	c.SetUserContext(ctx)
	return c.Next()
}
