// Package remision implementa el motor de lotes: encolado atómico de
// registros pendientes, envío SOAP a la AEAT y reintentos acotados, con
// control de flujo y cortacircuitos por tenant.
package remision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// Errores operacionales del motor. No son fallos: indican que el envío se
// aplazó y volverá a intentarse en el siguiente ciclo.
var (
	ErrFlowDeferred = errors.New("envío aplazado por control de flujo")
	ErrBreakerOpen  = errors.New("envíos en pausa por fallos consecutivos del tenant")
)

// errNothingPending aborta la transacción de encolado cuando no hay registros
// que reclamar, deshaciendo el lote vacío.
var errNothingPending = errors.New("sin registros pendientes")

// Config parámetros operativos del motor.
type Config struct {
	BatchSize        int           // Máximo de registros por lote
	FlowInterval     time.Duration // Espera mínima entre envíos del mismo tenant
	BreakerThreshold int           // Fallos de transporte consecutivos que abren el cortacircuitos
	BreakerPause     time.Duration // Duración de la pausa con el cortacircuitos abierto
}

// DefaultConfig valores alineados con las condiciones de servicio de la AEAT.
func DefaultConfig() Config {
	return Config{
		BatchSize:        100,
		FlowInterval:     60 * time.Second,
		BreakerThreshold: 5,
		BreakerPause:     300 * time.Second,
	}
}

// Engine orquesta el ciclo de vida de los lotes de remisión.
type Engine struct {
	records repository.RecordRepository
	batches repository.BatchRepository
	tenants repository.TenantConfigRepository
	tx      RemisionTxRunner
	builder EnvelopeBuilder
	client  AEATClient
	audit   *audit.Service
	log     *logger.Logger
	cfg     Config

	mu             sync.Mutex
	lastSubmission map[string]time.Time
	failureStreak  map[string]int
	pausedUntil    map[string]time.Time
	now            func() time.Time
}

// NewEngine construye el motor de remisión.
func NewEngine(
	records repository.RecordRepository,
	batches repository.BatchRepository,
	tenants repository.TenantConfigRepository,
	tx RemisionTxRunner,
	builder EnvelopeBuilder,
	client AEATClient,
	auditSvc *audit.Service,
	log *logger.Logger,
	cfg Config,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		records:        records,
		batches:        batches,
		tenants:        tenants,
		tx:             tx,
		builder:        builder,
		client:         client,
		audit:          auditSvc,
		log:            log,
		cfg:            cfg,
		lastSubmission: map[string]time.Time{},
		failureStreak:  map[string]int{},
		pausedUntil:    map[string]time.Time{},
		now:            time.Now,
	}
}

// EnqueuePending crea un lote nuevo y reclama atómicamente los registros
// pendientes del tenant, en orden de cadena. Devuelve (nil, nil) si no hay
// nada pendiente: la transacción se deshace y el lote vacío nunca existe.
func (e *Engine) EnqueuePending(ctx context.Context, tenantID string) (*entity.RemisionBatch, error) {
	cfg, err := e.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}

	batch := &entity.RemisionBatch{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Status:          entity.BatchStatusQueued,
		AEATEnvironment: cfg.AEATEnvironment,
		CreatedAt:       e.now().UTC(),
	}

	err = e.tx.RunRemision(ctx, func(tx RemisionTx) error {
		if err := tx.Batches().Create(ctx, batch); err != nil {
			return err
		}
		claimed, err := tx.Records().ClaimPending(ctx, tenantID, batch.ID, e.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return errNothingPending
		}
		batch.TotalRecords = len(claimed)
		return tx.Batches().Update(ctx, batch)
	})
	if errors.Is(err, errNothingPending) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("tenant_id", tenantID).
		Str("batch_id", batch.ID).
		Int("records", batch.TotalRecords).
		Msg("lote de remisión encolado")
	return batch, nil
}

// SubmitBatch remite el lote a la AEAT. Con force un operador salta el
// control de flujo y el cortacircuitos; el scheduler nunca fuerza.
func (e *Engine) SubmitBatch(ctx context.Context, tenantID, batchID string, force bool) (*entity.RemisionBatch, error) {
	batch, err := e.ownedBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != entity.BatchStatusQueued {
		return nil, fmt.Errorf("%w: el lote %s está en estado %s", domain.ErrInvalidInput, batchID, batch.Status)
	}

	if !force {
		if err := e.admit(tenantID); err != nil {
			return nil, err
		}
	}

	cfg, err := e.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	members, err := e.pendingMembers(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: el lote %s no tiene registros por remitir", domain.ErrInvalidInput, batchID)
	}

	envelope, err := e.builder.BuildEnvelope(cfg, members)
	if err != nil {
		return nil, err
	}

	// La transición queued → sending es condicional: de dos envíos
	// concurrentes del mismo lote solo uno reclama y remite el sobre.
	now := e.now().UTC()
	claimed, err := e.batches.ClaimForSending(ctx, batch.ID, envelope, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: el lote %s ya fue tomado por otro envío", domain.ErrInvalidInput, batchID)
	}
	batch.Status = entity.BatchStatusSending
	batch.RequestXML = envelope
	batch.SentAt = &now
	e.markSubmission(tenantID)

	e.audit.Log(ctx, audit.Entry{
		TenantID:  tenantID,
		EventType: entity.EventAEATSubmit,
		Severity:  entity.SeverityInfo,
		Detail: map[string]any{
			"batch_id":    batch.ID,
			"records":     len(members),
			"environment": batch.AEATEnvironment,
			"retry_count": batch.RetryCount,
		},
	})

	resp, err := e.client.Submit(ctx, tenantID, batch.AEATEnvironment, envelope)
	if err != nil {
		return e.settleTransportFailure(ctx, batch, members, err)
	}
	return e.settleResponse(ctx, batch, members, resp)
}

// RetryBatch reintenta un lote en error o error parcial. Solo vuelve a
// remitir los registros que aún no fueron aceptados; los aceptados conservan
// su estado.
func (e *Engine) RetryBatch(ctx context.Context, tenantID, batchID string) (*entity.RemisionBatch, error) {
	batch, err := e.ownedBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != entity.BatchStatusError && batch.Status != entity.BatchStatusPartialError {
		return nil, fmt.Errorf("%w: estado actual %s", domain.ErrBatchNotRetryable, batch.Status)
	}
	if batch.RetryCount >= entity.MaxBatchRetries {
		return nil, fmt.Errorf("%w: %d reintentos", domain.ErrRetryLimitExceeded, batch.RetryCount)
	}

	batch.RetryCount++
	batch.Status = entity.BatchStatusQueued
	batch.ErrorMessage = ""
	if err := e.batches.Update(ctx, batch); err != nil {
		return nil, err
	}
	return e.SubmitBatch(ctx, tenantID, batchID, true)
}

// ProcessQueue ejecuta un ciclo del motor para todos los tenants con trabajo:
// reintenta lotes fallidos con cupo y encola y remite los pendientes nuevos
// de los tenants con remisión automática. Los aplazamientos por control de
// flujo o cortacircuitos no son errores y se dejan para el ciclo siguiente.
func (e *Engine) ProcessQueue(ctx context.Context) {
	tenants, err := e.records.ListTenantsWithPending(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("no se pudo listar tenants con pendientes")
		return
	}

	for _, tenantID := range tenants {
		cfg, err := e.tenants.GetByTenantID(ctx, tenantID)
		if err != nil {
			e.log.Error().Err(err).Str("tenant_id", tenantID).Msg("configuración del tenant inaccesible")
			continue
		}
		if !cfg.IsActive || !cfg.AutoRemision {
			continue
		}

		e.retryFailedBatches(ctx, tenantID)

		batch, err := e.EnqueuePending(ctx, tenantID)
		if err != nil {
			e.log.Error().Err(err).Str("tenant_id", tenantID).Msg("fallo encolando pendientes")
			continue
		}
		if batch == nil {
			continue
		}
		if _, err := e.SubmitBatch(ctx, tenantID, batch.ID, false); err != nil && !isDeferral(err) {
			e.log.Error().Err(err).Str("batch_id", batch.ID).Msg("fallo remitiendo lote")
		}
	}
}

// GetBatch devuelve un lote del tenant.
func (e *Engine) GetBatch(ctx context.Context, tenantID, batchID string) (*entity.RemisionBatch, error) {
	return e.ownedBatch(ctx, tenantID, batchID)
}

// ListBatches devuelve los lotes del tenant con filtros y paginación.
func (e *Engine) ListBatches(ctx context.Context, tenantID string, filter repository.BatchFilter) ([]*entity.RemisionBatch, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return e.batches.List(ctx, tenantID, filter)
}

// QueueStatus devuelve la profundidad de la cola del tenant.
func (e *Engine) QueueStatus(ctx context.Context, tenantID string) (int, error) {
	return e.records.CountPending(ctx, tenantID)
}

func (e *Engine) retryFailedBatches(ctx context.Context, tenantID string) {
	for _, status := range []string{entity.BatchStatusError, entity.BatchStatusPartialError} {
		failed, _, err := e.batches.List(ctx, tenantID, repository.BatchFilter{Status: status, Limit: 10})
		if err != nil {
			e.log.Error().Err(err).Str("tenant_id", tenantID).Msg("no se pudieron listar lotes fallidos")
			continue
		}
		for _, b := range failed {
			if !b.IsRetryable() {
				continue
			}
			if err := e.admit(tenantID); err != nil {
				return
			}
			if _, err := e.RetryBatch(ctx, tenantID, b.ID); err != nil && !isDeferral(err) {
				e.log.Error().Err(err).Str("batch_id", b.ID).Msg("fallo reintentando lote")
			}
		}
	}
}

// settleTransportFailure cierra el lote tras un fallo de red o TLS: nada
// llegó a la AEAT, el lote queda en error y sus registros vuelven a pendiente
// sin soltar el lote. El tenant sigue así visible para el ciclo automático,
// que reintenta el lote aunque no entren registros nuevos.
func (e *Engine) settleTransportFailure(ctx context.Context, batch *entity.RemisionBatch, members []*entity.InvoiceRecord, cause error) (*entity.RemisionBatch, error) {
	now := e.now().UTC()
	batch.Status = entity.BatchStatusError
	batch.ErrorMessage = cause.Error()
	batch.ResponseAt = &now
	if err := e.batches.Update(ctx, batch); err != nil {
		return nil, err
	}
	for _, r := range members {
		if err := e.records.UpdateSubmissionResult(ctx, r.ID, entity.AEATStatusPending, ""); err != nil {
			e.log.Error().Err(err).Str("record_id", r.ID).Msg("no se pudo devolver el registro a pendiente")
		}
	}

	streak := e.recordFailure(batch.TenantID)
	e.audit.Log(ctx, audit.Entry{
		TenantID:  batch.TenantID,
		EventType: entity.EventBatchFailed,
		Severity:  entity.SeverityWarning,
		Detail: map[string]any{
			"batch_id":       batch.ID,
			"error":          cause.Error(),
			"retry_count":    batch.RetryCount,
			"failure_streak": streak,
		},
	})
	e.log.Error().
		Err(cause).
		Str("batch_id", batch.ID).
		Int("failure_streak", streak).
		Msg("fallo de transporte remitiendo lote")
	return batch, nil
}

// settleResponse aplica el veredicto de la AEAT registro a registro y deriva
// el estado final del lote. Un envío con todos los registros rechazados sigue
// siendo una respuesta funcional: error parcial, no error de transporte.
func (e *Engine) settleResponse(ctx context.Context, batch *entity.RemisionBatch, members []*entity.InvoiceRecord, resp *SubmissionResponse) (*entity.RemisionBatch, error) {
	byKey := map[string]RecordResult{}
	for _, res := range resp.Results {
		byKey[res.NumeroFactura+"|"+res.RecordType] = res
	}

	accepted, rejected := 0, 0
	for _, r := range members {
		res, ok := byKey[r.NumeroFactura+"|"+r.RecordType]
		if !ok {
			// Sin línea de respuesta: se conserva para el reintento.
			rejected++
			if err := e.records.UpdateSubmissionResult(ctx, r.ID, entity.AEATStatusError, ""); err != nil {
				e.log.Error().Err(err).Str("record_id", r.ID).Msg("no se pudo actualizar el registro sin veredicto")
			}
			continue
		}
		status := entity.AEATStatusAccepted
		if !res.Accepted {
			status = entity.AEATStatusRejected
			rejected++
		} else {
			accepted++
		}
		if err := e.records.UpdateSubmissionResult(ctx, r.ID, status, res.Code); err != nil {
			e.log.Error().Err(err).Str("record_id", r.ID).Msg("no se pudo aplicar el veredicto AEAT")
		}
	}

	now := e.now().UTC()
	batch.AcceptedRecords += accepted
	batch.RejectedRecords = rejected
	batch.CSV = resp.CSV
	batch.ResponseXML = resp.ResponseXML
	batch.ResponseAt = &now
	if rejected == 0 {
		batch.Status = entity.BatchStatusSent
	} else {
		batch.Status = entity.BatchStatusPartialError
	}
	if err := e.batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	e.resetFailures(batch.TenantID)

	severity := entity.SeverityInfo
	if rejected > 0 {
		severity = entity.SeverityNotice
	}
	e.audit.Log(ctx, audit.Entry{
		TenantID:  batch.TenantID,
		EventType: entity.EventAEATResponse,
		Severity:  severity,
		Detail: map[string]any{
			"batch_id":     batch.ID,
			"estado_envio": resp.EstadoEnvio,
			"csv":          resp.CSV,
			"accepted":     accepted,
			"rejected":     rejected,
		},
	})
	e.log.Info().
		Str("batch_id", batch.ID).
		Str("estado_envio", resp.EstadoEnvio).
		Int("accepted", accepted).
		Int("rejected", rejected).
		Msg("respuesta AEAT aplicada")
	return batch, nil
}

// pendingMembers devuelve los registros del lote aún no aceptados, en orden
// de cadena.
func (e *Engine) pendingMembers(ctx context.Context, batchID string) ([]*entity.InvoiceRecord, error) {
	all, err := e.records.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	var out []*entity.InvoiceRecord
	for _, r := range all {
		if r.AEATStatus != entity.AEATStatusAccepted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Engine) ownedBatch(ctx context.Context, tenantID, batchID string) (*entity.RemisionBatch, error) {
	batch, err := e.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return batch, nil
}

// admit aplica control de flujo y cortacircuitos del tenant.
func (e *Engine) admit(tenantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if until, ok := e.pausedUntil[tenantID]; ok && now.Before(until) {
		return ErrBreakerOpen
	}
	if last, ok := e.lastSubmission[tenantID]; ok && now.Sub(last) < e.cfg.FlowInterval {
		return ErrFlowDeferred
	}
	return nil
}

func (e *Engine) markSubmission(tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubmission[tenantID] = e.now()
}

func (e *Engine) recordFailure(tenantID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureStreak[tenantID]++
	streak := e.failureStreak[tenantID]
	if streak >= e.cfg.BreakerThreshold {
		e.pausedUntil[tenantID] = e.now().Add(e.cfg.BreakerPause)
	}
	return streak
}

func (e *Engine) resetFailures(tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureStreak[tenantID] = 0
	delete(e.pausedUntil, tenantID)
}

func isDeferral(err error) bool {
	return errors.Is(err, ErrFlowDeferred) || errors.Is(err, ErrBreakerOpen)
}
