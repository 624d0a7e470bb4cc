package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
	"github.com/jaraba/verifactu-api/internal/infrastructure/aeat"
	"github.com/jaraba/verifactu-api/internal/infrastructure/postgres"
	"github.com/jaraba/verifactu-api/internal/infrastructure/qr"
	httpRouter "github.com/jaraba/verifactu-api/internal/interfaces/http"
	"github.com/jaraba/verifactu-api/internal/jobs"
	"github.com/jaraba/verifactu-api/pkg/config"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	recordRepo := postgres.NewRecordRepository(pool)
	tenantRepo := postgres.NewTenantConfigRepository(pool)
	batchRepo := postgres.NewBatchRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	taskRunRepo := postgres.NewTaskRunRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Pasarela AEAT: certificados por tenant, firma XAdES y cliente SOAP
	certManager := aeat.NewCertificateManager(cfg.AEAT, log)
	xmlBuilder := aeat.NewXMLBuilder(cfg.AEAT)
	soapClient := aeat.NewSOAPClient(cfg.AEAT, certManager, aeat.NewSigner(), log)
	qrGenerator := qr.NewGenerator(cfg.AEAT)

	auditSvc := audit.NewService(auditRepo, log)
	ledgerSvc := ledger.NewService(recordRepo, tenantRepo, txRunner, qrGenerator, auditSvc, log)
	verifier := ledger.NewVerifier(recordRepo, tenantRepo, auditSvc, log)
	engine := remision.NewEngine(recordRepo, batchRepo, tenantRepo, txRunner, xmlBuilder, soapClient, auditSvc, log, remision.Config{
		BatchSize:        cfg.Remision.BatchSize,
		FlowInterval:     time.Duration(cfg.Remision.FlowIntervalSec) * time.Second,
		BreakerThreshold: cfg.Remision.BreakerThreshold,
		BreakerPause:     time.Duration(cfg.Remision.BreakerPauseSec) * time.Second,
	})
	configSvc := tenantcfg.NewService(tenantRepo, certManager, soapClient, auditSvc, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "VeriFactu API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Ledger:    ledgerSvc,
		Verifier:  verifier,
		Engine:    engine,
		Config:    configSvc,
		Audit:     auditSvc,
		Builder:   xmlBuilder,
		JWTSecret: cfg.JWT.Secret,
	})

	scheduler, err := jobs.New(engine, verifier, tenantRepo, taskRunRepo, certManager, auditSvc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("creación del scheduler")
	}
	scheduler.Start()

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("apagado del scheduler")
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
