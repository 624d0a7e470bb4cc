package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// RecordHandler maneja los registros de facturación y la cadena de huellas.
type RecordHandler struct {
	ledger   *ledger.Service
	verifier *ledger.Verifier
	builder  remision.EnvelopeBuilder
	config   *tenantcfg.Service
}

// NewRecordHandler construye el handler.
func NewRecordHandler(ledgerSvc *ledger.Service, verifier *ledger.Verifier, builder remision.EnvelopeBuilder, configSvc *tenantcfg.Service) *RecordHandler {
	return &RecordHandler{ledger: ledgerSvc, verifier: verifier, builder: builder, config: configSvc}
}

// Create sella un registro de alta en la cadena del tenant.
// POST /api/v1/verifactu/records
func (h *RecordHandler) Create(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.CreateRecordRequest
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "cuerpo inválido")
	}
	record, err := h.ledger.CreateAlta(c.Context(), tenantID, in, GetUserID(c), c.IP())
	if err != nil {
		return errorJSON(c, err, "CREATE_ERROR")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromRecord(record))
}

// Cancel sella el registro de anulación de una factura dada de alta.
// POST /api/v1/verifactu/records/:id/cancel
func (h *RecordHandler) Cancel(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	record, err := h.ledger.CreateAnulacion(c.Context(), tenantID, c.Params("id"), GetUserID(c), c.IP())
	if err != nil {
		return errorJSON(c, err, "CANCEL_ERROR")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromRecord(record))
}

// Rectify sella una factura rectificativa (R1) sobre una factura existente.
// POST /api/v1/verifactu/records/:id/rectify
func (h *RecordHandler) Rectify(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.CreateRecordRequest
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "cuerpo inválido")
	}
	record, err := h.ledger.CreateRectificativa(c.Context(), tenantID, c.Params("id"), in, GetUserID(c), c.IP())
	if err != nil {
		return errorJSON(c, err, "CREATE_ERROR")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromRecord(record))
}

// List devuelve los registros del tenant paginados.
// GET /api/v1/verifactu/records?aeat_status=&record_type=&limit=&offset=
func (h *RecordHandler) List(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "paginación inválida")
	}
	page.DefaultPage()

	records, total, err := h.ledger.List(c.Context(), tenantID, repository.RecordFilter{
		AEATStatus: c.Query("aeat_status"),
		RecordType: c.Query("record_type"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}

	items := make([]dto.RecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.FromRecord(r))
	}
	return c.JSON(fiber.Map{
		"records": items,
		"page":    dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	})
}

// GetByID devuelve un registro del tenant.
// GET /api/v1/verifactu/records/:id
func (h *RecordHandler) GetByID(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	record, err := h.ledger.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.FromRecord(record))
}

// GetQR devuelve la URL de cotejo y la imagen QR del registro, regenerándolas
// si el sellado no llegó a adjuntarlas.
// GET /api/v1/verifactu/records/:id/qr
func (h *RecordHandler) GetQR(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	record, err := h.ledger.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	if record.QRURL == "" || record.QRImage == "" {
		record, err = h.ledger.RegenerateQR(c.Context(), tenantID, record.ID)
		if err != nil {
			return errorJSON(c, err, "INTERNAL_ERROR")
		}
	}
	return c.JSON(fiber.Map{
		"qr_url":   record.QRURL,
		"qr_image": record.QRImage,
	})
}

// GetXML devuelve el sobre de remisión de un único registro, útil para
// inspección y archivado.
// GET /api/v1/verifactu/records/:id/xml
func (h *RecordHandler) GetXML(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	record, err := h.ledger.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	cfg, err := h.config.Get(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	envelope, err := h.builder.BuildEnvelope(cfg, []*entity.InvoiceRecord{record})
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.SendString(envelope)
}

// ChainHead devuelve la cabeza actual de la cadena del tenant.
// GET /api/v1/verifactu/chain/head
func (h *RecordHandler) ChainHead(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	huella, recordID, err := h.ledger.GetChainHead(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(fiber.Map{
		"last_chain_huella":    huella,
		"last_chain_record_id": recordID,
	})
}

// VerifyChain recorre la cadena completa del tenant recomputando huellas.
// POST /api/v1/verifactu/chain/verify
func (h *RecordHandler) VerifyChain(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	result, err := h.verifier.VerifyChain(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.VerificationResponse{
		IsValid:         result.IsValid,
		TotalRecords:    result.TotalRecords,
		ValidRecords:    result.ValidRecords,
		BreakAtRecordID: result.BreakAtRecordID,
	})
}
