package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
)

// ConfigHandler maneja la configuración VeriFactu del tenant y su certificado.
type ConfigHandler struct {
	svc *tenantcfg.Service
}

// NewConfigHandler construye el handler.
func NewConfigHandler(svc *tenantcfg.Service) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// Get devuelve la configuración del tenant.
// GET /api/v1/verifactu/config
func (h *ConfigHandler) Get(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	cfg, err := h.svc.Get(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.FromTenantConfig(cfg))
}

// Update crea o actualiza la configuración con los campos enviados.
// PUT /api/v1/verifactu/config
func (h *ConfigHandler) Update(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.UpdateTenantConfigRequest
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "cuerpo inválido")
	}
	cfg, err := h.svc.Upsert(c.Context(), tenantID, in, GetUserID(c))
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(dto.FromTenantConfig(cfg))
}

// UploadCertificate valida y guarda el certificado .p12 del tenant.
// POST /api/v1/verifactu/config/certificate
func (h *ConfigHandler) UploadCertificate(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.UploadCertificateRequest
	if err := c.BodyParser(&in); err != nil {
		return respond(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "cuerpo inválido")
	}
	info, err := h.svc.UploadCertificate(c.Context(), tenantID, in, GetUserID(c))
	if err != nil {
		return errorJSON(c, err, "INVALID_CERTIFICATE")
	}
	notAfter := info.NotAfter
	return c.Status(fiber.StatusCreated).JSON(dto.CertificateStatusResponse{
		HasCertificate: true,
		IsValid:        info.IsValid(),
		Subject:        info.Subject,
		ExpiresAt:      &notAfter,
	})
}

// CertificateStatus devuelve el estado del certificado sin exponer su contenido.
// GET /api/v1/verifactu/config/certificate/status
func (h *ConfigHandler) CertificateStatus(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	status, err := h.svc.CertificateStatus(c.Context(), tenantID)
	if err != nil {
		return errorJSON(c, err, "INTERNAL_ERROR")
	}
	return c.JSON(status)
}

// TestConnection comprueba el canal con la AEAT con el certificado del tenant.
// POST /api/v1/verifactu/config/test-connection
func (h *ConfigHandler) TestConnection(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	if err := h.svc.TestConnection(c.Context(), tenantID); err != nil {
		return errorJSON(c, err, "REMISION_ERROR")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
