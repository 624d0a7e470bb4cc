package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ repository.RecordRepository = (*RecordRepo)(nil)

// recordColumns columnas del registro en orden de escaneo.
const recordColumns = `id, tenant_id, seq, record_type, nif_emisor, nombre_emisor,
	numero_factura, fecha_expedicion, tipo_factura, clave_regimen,
	base_imponible, tipo_impositivo, cuota_tributaria, importe_total,
	huella, huella_anterior, aeat_status,
	COALESCE(aeat_response_code, ''), COALESCE(remision_batch_id::text, ''),
	COALESCE(qr_url, ''), COALESCE(qr_image, ''), created_at`

// RecordRepo implementación de RecordRepository (usable con pool o tx).
type RecordRepo struct {
	q Querier
}

// NewRecordRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRecordRepository(q Querier) *RecordRepo {
	return &RecordRepo{q: q}
}

// Create inserta el registro sellado y recoge el seq asignado por la base.
func (r *RecordRepo) Create(ctx context.Context, record *entity.InvoiceRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoice_records (id, tenant_id, record_type, nif_emisor, nombre_emisor,
			numero_factura, fecha_expedicion, tipo_factura, clave_regimen,
			base_imponible, tipo_impositivo, cuota_tributaria, importe_total,
			huella, huella_anterior, aeat_status, aeat_response_code,
			remision_batch_id, qr_url, qr_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		record.ID, record.TenantID, record.RecordType, record.NIFEmisor, record.NombreEmisor,
		record.NumeroFactura, record.FechaExpedicion, record.TipoFactura, record.ClaveRegimen,
		record.BaseImponible, record.TipoImpositivo, record.CuotaTributaria, record.ImporteTotal,
		record.Huella, nullIfEmpty(record.HuellaAnterior), record.AEATStatus, nullIfEmpty(record.AEATResponseCode),
		nullIfEmpty(record.RemisionBatchID), nullIfEmpty(record.QRURL), nullIfEmpty(record.QRImage), record.CreatedAt,
	).Scan(&record.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: huella o número de factura ya registrados", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetByID obtiene un registro por ID.
func (r *RecordRepo) GetByID(ctx context.Context, id string) (*entity.InvoiceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM invoice_records WHERE id = $1`
	record, err := scanRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// HasAnulacion indica si la factura del tenant ya tiene anulación.
func (r *RecordRepo) HasAnulacion(ctx context.Context, tenantID, numeroFactura string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM invoice_records
			WHERE tenant_id = $1 AND numero_factura = $2 AND record_type = 'anulacion')`
	var exists bool
	if err := r.q.QueryRow(ctx, query, tenantID, numeroFactura).Scan(&exists); err != nil {
		return false, fmt.Errorf("check anulacion: %w", err)
	}
	return exists, nil
}

// ListByTenantOrdered devuelve la cadena completa del tenant en orden de
// creación, en una sola consulta.
func (r *RecordRepo) ListByTenantOrdered(ctx context.Context, tenantID string) ([]*entity.InvoiceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM invoice_records WHERE tenant_id = $1 ORDER BY seq`
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list chain: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// List devuelve una página de registros del tenant, más recientes primero.
func (r *RecordRepo) List(ctx context.Context, tenantID string, filter repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	query := `SELECT ` + recordColumns + `
		FROM invoice_records
		WHERE tenant_id = $1
		  AND ($2 = '' OR aeat_status = $2)
		  AND ($3 = '' OR record_type = $3)
		ORDER BY seq DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, tenantID, filter.AEATStatus, filter.RecordType, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery := `
		SELECT COUNT(*) FROM invoice_records
		WHERE tenant_id = $1
		  AND ($2 = '' OR aeat_status = $2)
		  AND ($3 = '' OR record_type = $3)`
	var total int
	if err := r.q.QueryRow(ctx, countQuery, tenantID, filter.AEATStatus, filter.RecordType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}

// ListByBatch devuelve los registros de un lote en orden de cadena.
func (r *RecordRepo) ListByBatch(ctx context.Context, batchID string) ([]*entity.InvoiceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM invoice_records WHERE remision_batch_id = $1 ORDER BY seq`
	rows, err := r.q.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ClaimPending reclama atómicamente los pendientes libres del tenant para el
// lote. FOR UPDATE SKIP LOCKED evita que dos encolados concurrentes reclamen
// el mismo registro; un registro asignado a un lote vivo o a un lote fallido
// con cupo de reintento no se toca.
func (r *RecordRepo) ClaimPending(ctx context.Context, tenantID, batchID string, limit int) ([]*entity.InvoiceRecord, error) {
	query := `
		UPDATE invoice_records
		SET remision_batch_id = $2
		WHERE id IN (
			SELECT ir.id
			FROM invoice_records ir
			LEFT JOIN remision_batches b ON b.id = ir.remision_batch_id
			WHERE ir.tenant_id = $1
			  AND ir.aeat_status = 'pending'
			  AND (ir.remision_batch_id IS NULL
			       OR b.status = 'sent'
			       OR (b.status IN ('error', 'partial_error') AND b.retry_count >= $4))
			ORDER BY ir.seq
			LIMIT $3
			FOR UPDATE OF ir SKIP LOCKED)
		RETURNING ` + recordColumns
	rows, err := r.q.Query(ctx, query, tenantID, batchID, limit, entity.MaxBatchRetries)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// UpdateSubmissionResult actualiza únicamente el grupo de estado AEAT.
func (r *RecordRepo) UpdateSubmissionResult(ctx context.Context, recordID, status, responseCode string) error {
	query := `UPDATE invoice_records SET aeat_status = $2, aeat_response_code = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, recordID, status, nullIfEmpty(responseCode))
	if err != nil {
		return fmt.Errorf("update submission result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateQR persiste la URL de cotejo y la imagen QR derivadas del registro.
func (r *RecordRepo) UpdateQR(ctx context.Context, recordID, qrURL, qrImage string) error {
	query := `UPDATE invoice_records SET qr_url = $2, qr_image = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, recordID, qrURL, qrImage)
	if err != nil {
		return fmt.Errorf("update qr: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountPending devuelve la profundidad de la cola del tenant.
func (r *RecordRepo) CountPending(ctx context.Context, tenantID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM invoice_records WHERE tenant_id = $1 AND aeat_status = 'pending'`
	if err := r.q.QueryRow(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// ListTenantsWithPending devuelve los tenants con registros por remitir.
func (r *RecordRepo) ListTenantsWithPending(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT tenant_id FROM invoice_records WHERE aeat_status = 'pending' ORDER BY tenant_id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants with pending: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenantID)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*entity.InvoiceRecord, error) {
	var rec entity.InvoiceRecord
	var huellaAnterior *string
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Seq, &rec.RecordType, &rec.NIFEmisor, &rec.NombreEmisor,
		&rec.NumeroFactura, &rec.FechaExpedicion, &rec.TipoFactura, &rec.ClaveRegimen,
		&rec.BaseImponible, &rec.TipoImpositivo, &rec.CuotaTributaria, &rec.ImporteTotal,
		&rec.Huella, &huellaAnterior, &rec.AEATStatus,
		&rec.AEATResponseCode, &rec.RemisionBatchID,
		&rec.QRURL, &rec.QRImage, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if huellaAnterior != nil {
		rec.HuellaAnterior = *huellaAnterior
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*entity.InvoiceRecord, error) {
	var list []*entity.InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
