package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// AuditHandler expone el log de eventos SIF (solo lectura).
type AuditHandler struct {
	svc *audit.Service
}

// NewAuditHandler construye el handler.
func NewAuditHandler(svc *audit.Service) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List devuelve los eventos del tenant filtrados y paginados.
// GET /api/v1/verifactu/events?event_type=&severity=&limit=&offset=
func (h *AuditHandler) List(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "paginación inválida")
	}
	page.DefaultPage()

	events, total, err := h.svc.List(c.Context(), tenantID, repository.AuditFilter{
		EventType: c.Query("event_type"),
		Severity:  c.Query("severity"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}

	items := make([]dto.AuditEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, dto.FromAuditEvent(e))
	}
	return c.JSON(fiber.Map{
		"events": items,
		"page":   dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}
