// Package audit implementa el log de eventos SIF: registro inmutable y con
// huella propia de cada transición de ciclo de vida (creación de registros,
// envíos de lotes, verificaciones de cadena...).
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// Entry es una entrada a registrar en el log de auditoría.
type Entry struct {
	TenantID   string
	EventType  string
	Severity   string
	Detail     map[string]any
	RecordID   string
	Actor      string
	SourceAddr string
}

// Service registra y lista eventos de auditoría.
type Service struct {
	repo repository.AuditRepository
	log  *logger.Logger
}

// NewService construye el servicio.
func NewService(repo repository.AuditRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Log persiste un evento con su huella de integridad.
//
// Nunca propaga errores al caller: una caída del log de auditoría no debe
// bloquear la creación de registros fiscales. El fallo se reporta al logger
// operacional para que no pase en silencio.
func (s *Service) Log(ctx context.Context, e Entry) {
	if e.Severity == "" {
		e.Severity = entity.SeverityInfo
	}
	now := time.Now().UTC()

	event := &entity.AuditEvent{
		ID:         uuid.New().String(),
		TenantID:   e.TenantID,
		EventType:  e.EventType,
		Severity:   e.Severity,
		Detail:     e.Detail,
		RecordID:   e.RecordID,
		Actor:      e.Actor,
		SourceAddr: e.SourceAddr,
		EventHash:  stampHash(e, now),
		CreatedAt:  now,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.log.Error().
			Err(err).
			Str("tenant_id", e.TenantID).
			Str("event_type", e.EventType).
			Msg("no se pudo persistir evento de auditoría")
	}
}

// List devuelve los eventos del tenant con filtros y paginación.
func (s *Service) List(ctx context.Context, tenantID string, filter repository.AuditFilter) ([]*entity.AuditEvent, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, tenantID, filter)
}

// stampHash calcula la huella SHA-256 del contenido del evento para evidencia
// de manipulación. encoding/json serializa mapas con claves ordenadas, así
// que el hash es estable para el mismo detalle.
func stampHash(e Entry, at time.Time) string {
	detailJSON, _ := json.Marshal(e.Detail)
	cadena := e.TenantID + "|" + e.EventType + "|" + e.Severity + "|" +
		string(detailJSON) + "|" + at.Format(time.RFC3339Nano)
	h := sha256.Sum256([]byte(cadena))
	return hex.EncodeToString(h[:])
}
