package repository

import (
	"context"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// AuditFilter filtros de listado de eventos.
type AuditFilter struct {
	EventType string
	Severity  string
	Limit     int
	Offset    int
}

// AuditRepository define el puerto de persistencia del log de auditoría.
// Append-only: sin Update ni Delete.
type AuditRepository interface {
	Create(ctx context.Context, event *entity.AuditEvent) error
	List(ctx context.Context, tenantID string, filter AuditFilter) ([]*entity.AuditEvent, int, error)
}
