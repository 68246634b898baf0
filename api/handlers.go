package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/live"
	"github.com/papercomputeco/parley/pkg/orchestrator"
)

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// ConversationResponse is one stored conversation.
type ConversationResponse struct {
	ConversationID string              `json:"conversation_id"`
	Turns          []conversation.Turn `json:"turns"`
	Count          int                 `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	// An empty prompt is a valid turn and goes to the model as is.
	res, err := s.config.Orchestrator.Generate(c.UserContext(), req.Prompt, req.ConversationID,
		orchestrator.WithUserID(req.UserID),
	)
	if err != nil {
		return s.generationFailure(c, err)
	}

	return c.JSON(res)
}

// generationFailure maps a failed stage to a status: model construction is
// unavailable, model calls are a bad gateway, everything else is internal.
func (s *Server) generationFailure(c *fiber.Ctx, err error) error {
	var genErr *orchestrator.GenerationError
	if !errors.As(err, &genErr) {
		s.logger.Error("generate failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrClosed):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusRequestTimeout
	case genErr.Stage == orchestrator.StageInitializing:
		status = fiber.StatusServiceUnavailable
	case genErr.Stage == orchestrator.StageInvokingModel:
		status = fiber.StatusBadGateway
	}

	s.logger.Warn("generate failed",
		"stage", genErr.Stage,
		"conversation_id", genErr.ConversationID,
		"error", err,
	)

	return c.Status(status).JSON(ErrorResponse{
		Error:          genErr.Error(),
		Stage:          string(genErr.Stage),
		ConversationID: genErr.ConversationID,
	})
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	ids, err := s.config.Orchestrator.Conversations(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list conversations"})
	}

	return c.JSON(map[string]any{
		"count":         len(ids),
		"conversations": ids,
	})
}

// handleGetConversation returns the stored turns. Unknown ids are not an
// error; they have no turns yet.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id := utils.CopyString(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	rec, err := s.config.Orchestrator.History(c.UserContext(), id)
	if err != nil {
		s.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load conversation"})
	}

	return c.JSON(ConversationResponse{
		ConversationID: id,
		Turns:          rec.Turns,
		Count:          rec.Len(),
	})
}

// handleLiveMessage queues a viewer message, or answers it inline when the
// wait query parameter is set.
func (s *Server) handleLiveMessage(c *fiber.Ctx) error {
	if s.config.Live == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "live dispatcher is not enabled"})
	}

	var msg live.Message
	if err := c.BodyParser(&msg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(msg.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	if c.QueryBool("wait") {
		return c.JSON(s.config.Live.Handle(c.UserContext(), msg))
	}

	switch err := s.config.Live.Submit(msg); {
	case errors.Is(err, live.ErrQueueFull):
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(map[string]string{
		"status":          "queued",
		"conversation_id": s.config.Live.ConversationFor(msg.UserID),
	})
}
