package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// RemisionHandler maneja los lotes de remisión a la AEAT.
type RemisionHandler struct {
	engine *remision.Engine
}

// NewRemisionHandler construye el handler.
func NewRemisionHandler(engine *remision.Engine) *RemisionHandler {
	return &RemisionHandler{engine: engine}
}

// Create encola los registros pendientes del tenant en un lote nuevo y lo
// remite. Si el control de flujo o el cortacircuitos aplazan el envío, el
// lote queda encolado para el siguiente ciclo del scheduler.
// POST /api/v1/verifactu/remisions
func (h *RemisionHandler) Create(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	batch, err := h.engine.EnqueuePending(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "REMISION_ERROR")
	}
	if batch == nil {
		return c.JSON(fiber.Map{"message": "sin registros pendientes de remisión"})
	}

	settled, err := h.engine.SubmitBatch(c.Context(), tenantID, batch.ID, false)
	if err != nil {
		if errors.Is(err, remision.ErrFlowDeferred) || errors.Is(err, remision.ErrBreakerOpen) {
			return c.Status(fiber.StatusAccepted).JSON(dto.FromBatch(batch))
		}
		return errorJSON(c, err, "REMISION_ERROR")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromBatch(settled))
}

// Retry reintenta un lote en error o error parcial; solo vuelven a viajar los
// registros no aceptados.
// POST /api/v1/verifactu/remisions/:id/retry
func (h *RemisionHandler) Retry(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	batch, err := h.engine.RetryBatch(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return errorJSON(c, err, "RETRY_ERROR")
	}
	return c.JSON(dto.FromBatch(batch))
}

// List devuelve los lotes del tenant paginados.
// GET /api/v1/verifactu/remisions?status=&limit=&offset=
func (h *RemisionHandler) List(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "paginación inválida")
	}
	page.DefaultPage()

	batches, total, err := h.engine.ListBatches(c.Context(), tenantID, repository.BatchFilter{
		Status: c.Query("status"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}

	items := make([]dto.BatchResponse, 0, len(batches))
	for _, b := range batches {
		items = append(items, dto.FromBatch(b))
	}
	return c.JSON(fiber.Map{
		"batches": items,
		"page":    dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}

// GetByID devuelve un lote del tenant.
// GET /api/v1/verifactu/remisions/:id
func (h *RemisionHandler) GetByID(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	batch, err := h.engine.GetBatch(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.FromBatch(batch))
}

// QueueStatus devuelve la profundidad de la cola de pendientes del tenant.
// GET /api/v1/verifactu/remisions/queue-status
func (h *RemisionHandler) QueueStatus(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	pending, err := h.engine.QueueStatus(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.QueueStatusResponse{PendingRecords: pending})
}
