package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-api/internal/application/dte"
	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain"
)

// statusFor traduce la categoría del error a código HTTP.
func statusFor(err error) int {
	switch kind := domain.KindOf(err); {
	case kind == nil:
		return fiber.StatusInternalServerError
	case errors.Is(kind, domain.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(kind, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(kind, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(kind, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(kind, domain.ErrOverlappingRange),
		errors.Is(kind, domain.ErrRangeExhausted),
		errors.Is(kind, domain.ErrNoActiveRange),
		errors.Is(kind, domain.ErrInvalidTransition),
		errors.Is(kind, domain.ErrDuplicate),
		errors.Is(kind, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(kind, domain.ErrMalformedAuthorization),
		errors.Is(kind, domain.ErrMissingSigningKey),
		errors.Is(kind, domain.ErrSigningKeyInvalid),
		errors.Is(kind, domain.ErrSigningFailure),
		errors.Is(kind, domain.ErrSerialization),
		errors.Is(kind, domain.ErrEmptyEnvelope):
		return fiber.StatusUnprocessableEntity
	case errors.Is(kind, domain.ErrTransport),
		errors.Is(kind, domain.ErrUnparseableResponse),
		errors.Is(kind, domain.ErrUploadRejected):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// writeError responde {"success":false,"code":...,"message":...}.
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{
		Success: false,
		Code:    dte.ErrorCode(err),
		Message: err.Error(),
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: msg})
}
