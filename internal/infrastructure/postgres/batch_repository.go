package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

const batchColumns = `id, tenant_id, status, total_records, accepted_records, rejected_records,
	aeat_environment, COALESCE(csv, ''), retry_count, COALESCE(error_message, ''),
	COALESCE(request_xml, ''), COALESCE(response_xml, ''), sent_at, response_at, created_at`

// BatchRepo implementación de BatchRepository (usable con pool o tx).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

// Create persiste el lote recién encolado.
func (r *BatchRepo) Create(ctx context.Context, batch *entity.RemisionBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	query := `
		INSERT INTO remision_batches (id, tenant_id, status, total_records, accepted_records,
			rejected_records, aeat_environment, csv, retry_count, error_message,
			request_xml, response_xml, sent_at, response_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		batch.ID, batch.TenantID, batch.Status, batch.TotalRecords, batch.AcceptedRecords,
		batch.RejectedRecords, batch.AEATEnvironment, nullIfEmpty(batch.CSV), batch.RetryCount,
		nullIfEmpty(batch.ErrorMessage), nullIfEmpty(batch.RequestXML), nullIfEmpty(batch.ResponseXML),
		batch.SentAt, batch.ResponseAt, batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetByID obtiene un lote por ID.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*entity.RemisionBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM remision_batches WHERE id = $1`
	batch, err := scanBatch(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// List devuelve una página de lotes del tenant, más recientes primero.
func (r *BatchRepo) List(ctx context.Context, tenantID string, filter repository.BatchFilter) ([]*entity.RemisionBatch, int, error) {
	query := `SELECT ` + batchColumns + `
		FROM remision_batches
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, tenantID, filter.Status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var list []*entity.RemisionBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan batch: %w", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM remision_batches WHERE tenant_id = $1 AND ($2 = '' OR status = $2)`
	if err := r.q.QueryRow(ctx, countQuery, tenantID, filter.Status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return list, total, nil
}

// ClaimForSending pasa el lote de queued a sending. El UPDATE condicional
// garantiza que de dos envíos concurrentes solo uno reclama el lote.
func (r *BatchRepo) ClaimForSending(ctx context.Context, batchID, requestXML string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE remision_batches
		SET status = 'sending', request_xml = $2, sent_at = $3
		WHERE id = $1 AND status = 'queued'`
	tag, err := r.q.Exec(ctx, query, batchID, requestXML, sentAt)
	if err != nil {
		return false, fmt.Errorf("claim batch for sending: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update persiste estado, contadores, XMLs, CSV, reintentos y timestamps.
func (r *BatchRepo) Update(ctx context.Context, batch *entity.RemisionBatch) error {
	query := `
		UPDATE remision_batches
		SET status           = $2,
		    total_records    = $3,
		    accepted_records = $4,
		    rejected_records = $5,
		    csv              = COALESCE($6, csv),
		    retry_count      = $7,
		    error_message    = $8,
		    request_xml      = COALESCE($9, request_xml),
		    response_xml     = COALESCE($10, response_xml),
		    sent_at          = COALESCE($11, sent_at),
		    response_at      = COALESCE($12, response_at)
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		batch.ID, batch.Status, batch.TotalRecords, batch.AcceptedRecords, batch.RejectedRecords,
		nullIfEmpty(batch.CSV), batch.RetryCount, nullIfEmpty(batch.ErrorMessage),
		nullIfEmpty(batch.RequestXML), nullIfEmpty(batch.ResponseXML),
		batch.SentAt, batch.ResponseAt,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete elimina un lote vacío recién creado. Los lotes con registros
// asignados nunca se borran.
func (r *BatchRepo) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM remision_batches
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM invoice_records WHERE remision_batch_id = $1)`
	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBatch(row pgx.Row) (*entity.RemisionBatch, error) {
	var b entity.RemisionBatch
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Status, &b.TotalRecords, &b.AcceptedRecords, &b.RejectedRecords,
		&b.AEATEnvironment, &b.CSV, &b.RetryCount, &b.ErrorMessage,
		&b.RequestXML, &b.ResponseXML, &b.SentAt, &b.ResponseAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
