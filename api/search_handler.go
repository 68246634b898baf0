package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	apisearch "github.com/papercomputeco/parley/api/search"
)

// handleSearchEndpoint handles POST /v1/search. The body is a
// search.SearchInput; query is required and top_k defaults to 5.
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	if !s.config.Searcher.Enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: apisearch.ErrNotConfigured.Error(),
		})
	}

	var in apisearch.SearchInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if in.TopK < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "top_k must be a positive integer"})
	}

	output, err := s.config.Searcher.Search(c.UserContext(), in)
	switch {
	case errors.Is(err, apisearch.ErrEmptyQuery):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(output)
}
