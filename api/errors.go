package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/window"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes. Transient failures
// map to 503 so webhook providers retry the delivery.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidEvent),
		errors.Is(err, identity.ErrInvalidContact),
		errors.Is(err, identity.ErrInvalidTimezone),
		errors.Is(err, window.ErrInvalidTimeExpression):
		return fiber.StatusBadRequest
	case storage.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, recorder.ErrUserMismatch), errors.Is(err, storage.ErrConstraint):
		return fiber.StatusConflict
	case storage.IsTransient(err),
		errors.Is(err, memory.ErrInferenceUnavailable),
		errors.Is(err, memory.ErrNotConfigured):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error(msg, "path", c.Path(), "status", status, "error", err)
	} else {
		s.logger.Debug(msg, "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg + ": " + err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
