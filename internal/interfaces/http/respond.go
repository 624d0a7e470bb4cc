package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/domain"
)

// errorJSON mapea los errores centinela de dominio a códigos de la API. El
// fallback se usa para errores no centinela (CREATE_ERROR, REMISION_ERROR...).
func errorJSON(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return respond(c, fiber.StatusNotFound, "TENANT_NOT_FOUND", "el tenant no tiene configuración VeriFactu")
	case errors.Is(err, domain.ErrNotFound):
		return respond(c, fiber.StatusNotFound, "NOT_FOUND", "recurso no encontrado")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDuplicate):
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrNoCertificate):
		return respond(c, fiber.StatusBadRequest, "NO_CERTIFICATE", "el tenant no tiene certificado configurado")
	case errors.Is(err, domain.ErrInvalidCertificate):
		return respond(c, fiber.StatusBadRequest, "INVALID_CERTIFICATE", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return respond(c, fiber.StatusForbidden, "FORBIDDEN", "acceso denegado al recurso")
	case errors.Is(err, domain.ErrInvalidTarget):
		return respond(c, fiber.StatusConflict, "CANCEL_ERROR", err.Error())
	case errors.Is(err, domain.ErrImmutableField):
		return respond(c, fiber.StatusConflict, fallback, "el registro está sellado y no admite esa mutación")
	case errors.Is(err, domain.ErrChainConflict):
		return respond(c, fiber.StatusConflict, fallback, "conflicto de cadena, reintente la operación")
	case errors.Is(err, domain.ErrBatchNotRetryable), errors.Is(err, domain.ErrRetryLimitExceeded):
		return respond(c, fiber.StatusConflict, "RETRY_ERROR", err.Error())
	case errors.Is(err, remision.ErrFlowDeferred), errors.Is(err, remision.ErrBreakerOpen):
		return respond(c, fiber.StatusTooManyRequests, "REMISION_ERROR", err.Error())
	default:
		return respond(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func respond(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: message})
}

// unauthorized atajo para handlers que requieren tenant en el token.
func unauthorized(c *fiber.Ctx) error {
	return respond(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "token inválido")
}
