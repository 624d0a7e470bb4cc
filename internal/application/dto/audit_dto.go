package dto

import (
	"time"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// AuditEventResponse representación JSON de un evento de auditoría.
type AuditEventResponse struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	EventType  string         `json:"event_type"`
	Severity   string         `json:"severity"`
	Detail     map[string]any `json:"detail,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	SourceAddr string         `json:"source_addr,omitempty"`
	EventHash  string         `json:"event_hash"`
	CreatedAt  time.Time      `json:"created_at"`
}

// FromAuditEvent serializa la entidad para la API.
func FromAuditEvent(e *entity.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         e.ID,
		TenantID:   e.TenantID,
		EventType:  e.EventType,
		Severity:   e.Severity,
		Detail:     e.Detail,
		RecordID:   e.RecordID,
		Actor:      e.Actor,
		SourceAddr: e.SourceAddr,
		EventHash:  e.EventHash,
		CreatedAt:  e.CreatedAt,
	}
}
