package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Ledger    *ledger.Service
	Verifier  *ledger.Verifier
	Engine    *remision.Engine
	Config    *tenantcfg.Service
	Audit     *audit.Service
	Builder   remision.EnvelopeBuilder
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Todo el árbol VeriFactu requiere Bearer Token con tenant.
	api := app.Group("/api/v1/verifactu", AuthMiddleware(deps.JWTSecret))

	// Configuración del tenant y certificado. Las mutaciones son solo admin.
	configHandler := NewConfigHandler(deps.Config)
	adminOnly := RequireRole("admin")
	api.Get("/config", configHandler.Get)
	api.Put("/config", adminOnly, configHandler.Update)
	api.Post("/config/certificate", adminOnly, configHandler.UploadCertificate)
	api.Get("/config/certificate/status", configHandler.CertificateStatus)
	api.Post("/config/test-connection", adminOnly, configHandler.TestConnection)

	// Registros de facturación y cadena de huellas
	recordHandler := NewRecordHandler(deps.Ledger, deps.Verifier, deps.Builder, deps.Config)
	api.Post("/records", recordHandler.Create)
	api.Get("/records", recordHandler.List)
	api.Get("/records/:id", recordHandler.GetByID)
	api.Post("/records/:id/cancel", recordHandler.Cancel)
	api.Post("/records/:id/rectify", recordHandler.Rectify)
	api.Get("/records/:id/qr", recordHandler.GetQR)
	api.Get("/records/:id/xml", recordHandler.GetXML)
	api.Get("/chain/head", recordHandler.ChainHead)
	api.Post("/chain/verify", recordHandler.VerifyChain)

	// Lotes de remisión
	remisionHandler := NewRemisionHandler(deps.Engine)
	api.Post("/remisions", remisionHandler.Create)
	api.Get("/remisions", remisionHandler.List)
	api.Get("/remisions/queue-status", remisionHandler.QueueStatus)
	api.Get("/remisions/:id", remisionHandler.GetByID)
	api.Post("/remisions/:id/retry", remisionHandler.Retry)

	// Log de auditoría
	auditHandler := NewAuditHandler(deps.Audit)
	api.Get("/events", auditHandler.List)
}
