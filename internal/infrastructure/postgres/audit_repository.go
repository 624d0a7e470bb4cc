package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ repository.AuditRepository = (*AuditRepo)(nil)

// AuditRepo implementación de AuditRepository (usable con pool o tx).
// La tabla es append-only: este adaptador no expone Update ni Delete.
type AuditRepo struct {
	q Querier
}

// NewAuditRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAuditRepository(q Querier) *AuditRepo {
	return &AuditRepo{q: q}
}

// Create persiste un evento de auditoría.
func (r *AuditRepo) Create(ctx context.Context, event *entity.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	query := `
		INSERT INTO audit_events (id, tenant_id, event_type, severity, detail,
			record_id, actor, source_addr, event_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.q.Exec(ctx, query,
		event.ID, event.TenantID, event.EventType, event.Severity, detail,
		nullIfEmpty(event.RecordID), nullIfEmpty(event.Actor), nullIfEmpty(event.SourceAddr),
		event.EventHash, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List devuelve una página de eventos del tenant, más recientes primero.
func (r *AuditRepo) List(ctx context.Context, tenantID string, filter repository.AuditFilter) ([]*entity.AuditEvent, int, error) {
	query := `
		SELECT id, tenant_id, event_type, severity, detail,
		       COALESCE(record_id, ''), COALESCE(actor, ''), COALESCE(source_addr, ''),
		       event_hash, created_at
		FROM audit_events
		WHERE tenant_id = $1
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = '' OR severity = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, tenantID, filter.EventType, filter.Severity, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var list []*entity.AuditEvent
	for rows.Next() {
		var e entity.AuditEvent
		var detail []byte
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EventType, &e.Severity, &detail,
			&e.RecordID, &e.Actor, &e.SourceAddr,
			&e.EventHash, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit event: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, 0, fmt.Errorf("unmarshal detail: %w", err)
			}
		}
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `
		SELECT COUNT(*) FROM audit_events
		WHERE tenant_id = $1
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = '' OR severity = $3)`
	if err := r.q.QueryRow(ctx, countQuery, tenantID, filter.EventType, filter.Severity).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}
	return list, total, nil
}
