package api

import (
	"github.com/gofiber/fiber/v2"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns row counts per table.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.config.Driver.Stats(c.UserContext())
	if err != nil {
		return s.fail(c, "failed to load stats", err)
	}
	return c.JSON(stats)
}
