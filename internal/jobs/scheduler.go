// Package jobs programa los disparadores periódicos del sistema: remisión
// automática de pendientes, verificación de integridad de cadena y aviso de
// caducidad de certificados. Las cadencias largas se persisten en task_runs
// para que sobrevivan reinicios y no se dupliquen entre réplicas.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// Cadencias de las tareas. El ciclo de remisión corre cada minuto; las tareas
// por tenant se limitan mediante task_runs.
const (
	remisionTick      = time.Minute
	verifyTick        = time.Hour
	verifyInterval    = 24 * time.Hour
	certTick          = 6 * time.Hour
	certInterval      = 7 * 24 * time.Hour
	certWarningWindow = 30 * 24 * time.Hour
)

// Scheduler agrupa las tareas de fondo del servicio.
type Scheduler struct {
	scheduler gocron.Scheduler
	engine    *remision.Engine
	verifier  *ledger.Verifier
	tenants   repository.TenantConfigRepository
	taskRuns  repository.TaskRunRepository
	certs     tenantcfg.CertificateStore
	audit     *audit.Service
	log       *logger.Logger
}

// New construye el scheduler y registra las tareas. No arranca nada hasta
// llamar a Start.
func New(
	engine *remision.Engine,
	verifier *ledger.Verifier,
	tenants repository.TenantConfigRepository,
	taskRuns repository.TaskRunRepository,
	certs tenantcfg.CertificateStore,
	auditSvc *audit.Service,
	log *logger.Logger,
) (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creando scheduler: %w", err)
	}
	s := &Scheduler{
		scheduler: inner,
		engine:    engine,
		verifier:  verifier,
		tenants:   tenants,
		taskRuns:  taskRuns,
		certs:     certs,
		audit:     auditSvc,
		log:       log,
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start arranca las tareas en segundo plano.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.log.Info().Msg("scheduler de tareas iniciado")
}

// Stop detiene el scheduler y espera a que terminen las tareas en curso.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) register() error {
	jobs := []struct {
		name     string
		interval time.Duration
		task     func(ctx context.Context)
	}{
		{"remision-queue", remisionTick, s.runRemisionCycle},
		{"chain-verify", verifyTick, s.runChainVerification},
		{"cert-expiry", certTick, s.runCertExpiryCheck},
	}
	for _, j := range jobs {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.task, context.Background()),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("registrando tarea %s: %w", j.name, err)
		}
	}
	return nil
}

// runRemisionCycle encola y remite los pendientes de todos los tenants con
// remisión automática. El motor aplica control de flujo y cortacircuitos.
func (s *Scheduler) runRemisionCycle(ctx context.Context) {
	s.engine.ProcessQueue(ctx)
}

// runChainVerification verifica la cadena de cada tenant activo como máximo
// una vez al día.
func (s *Scheduler) runChainVerification(ctx context.Context) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("no se pudieron listar tenants para verificación")
		return
	}
	for _, cfg := range tenants {
		taskName := "verify_chain:" + cfg.TenantID
		due, err := s.isDue(ctx, taskName, verifyInterval)
		if err != nil {
			s.log.Error().Err(err).Str("task", taskName).Msg("no se pudo consultar la última ejecución")
			continue
		}
		if !due {
			continue
		}
		result, err := s.verifier.VerifyChain(ctx, cfg.TenantID)
		if err != nil {
			s.log.Error().Err(err).Str("tenant_id", cfg.TenantID).Msg("fallo verificando cadena")
			continue
		}
		if !result.IsValid {
			s.log.Error().
				Str("tenant_id", cfg.TenantID).
				Str("break_at", result.BreakAtRecordID).
				Msg("ruptura de cadena detectada en verificación programada")
		}
		s.markDone(ctx, taskName)
	}
}

// runCertExpiryCheck avisa, como máximo una vez por semana y por tenant,
// cuando el certificado caduca en menos de 30 días.
func (s *Scheduler) runCertExpiryCheck(ctx context.Context) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("no se pudieron listar tenants para chequeo de certificados")
		return
	}
	for _, cfg := range tenants {
		if !s.certs.Has(cfg.TenantID) {
			continue
		}
		taskName := "cert_expiry:" + cfg.TenantID
		due, err := s.isDue(ctx, taskName, certInterval)
		if err != nil {
			s.log.Error().Err(err).Str("task", taskName).Msg("no se pudo consultar la última ejecución")
			continue
		}
		if !due {
			continue
		}
		info, err := s.certs.Inspect(cfg.TenantID)
		if err != nil {
			s.log.Error().Err(err).Str("tenant_id", cfg.TenantID).Msg("no se pudo inspeccionar el certificado")
			continue
		}
		if info.ExpiresWithin(certWarningWindow) {
			severity := entity.SeverityWarning
			if !info.IsValid() {
				severity = entity.SeverityCritical
			}
			s.audit.Log(ctx, audit.Entry{
				TenantID:  cfg.TenantID,
				EventType: entity.EventCertWarning,
				Severity:  severity,
				Detail: map[string]any{
					"subject":   info.Subject,
					"not_after": info.NotAfter.Format(time.RFC3339),
					"days_left": int(time.Until(info.NotAfter).Hours() / 24),
				},
			})
			s.log.Warn().
				Str("tenant_id", cfg.TenantID).
				Time("not_after", info.NotAfter).
				Msg("certificado del tenant próximo a caducar")
		}
		s.markDone(ctx, taskName)
	}
}

// isDue indica si la tarea no se ha ejecutado dentro del intervalo.
func (s *Scheduler) isDue(ctx context.Context, taskName string, interval time.Duration) (bool, error) {
	last, err := s.taskRuns.GetLastRun(ctx, taskName)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return time.Since(*last) >= interval, nil
}

func (s *Scheduler) markDone(ctx context.Context, taskName string) {
	if err := s.taskRuns.MarkRun(ctx, taskName, time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Str("task", taskName).Msg("no se pudo registrar la ejecución de la tarea")
	}
}
