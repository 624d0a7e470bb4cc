package repository

import (
	"context"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// RecordFilter filtros de listado de registros.
type RecordFilter struct {
	AEATStatus string
	RecordType string
	Limit      int
	Offset     int
}

// RecordRepository define el puerto de persistencia del libro de registros.
// El libro es append-only: no existe Delete y la única actualización posible
// tras el sellado es la del grupo de campos de estado AEAT (y el QR, que es
// derivado determinista del contenido sellado).
type RecordRepository interface {
	Create(ctx context.Context, record *entity.InvoiceRecord) error
	GetByID(ctx context.Context, id string) (*entity.InvoiceRecord, error)
	// HasAnulacion indica si ya existe un registro de anulación para el número
	// de factura dentro del tenant.
	HasAnulacion(ctx context.Context, tenantID, numeroFactura string) (bool, error)
	// ListByTenantOrdered devuelve todos los registros del tenant en orden de
	// creación (seq ascendente), en una sola consulta (snapshot consistente
	// para la verificación de cadena).
	ListByTenantOrdered(ctx context.Context, tenantID string) ([]*entity.InvoiceRecord, error)
	List(ctx context.Context, tenantID string, filter RecordFilter) ([]*entity.InvoiceRecord, int, error)
	ListByBatch(ctx context.Context, batchID string) ([]*entity.InvoiceRecord, error)
	// ClaimPending reclama atómicamente hasta limit registros pendientes del
	// tenant que no pertenezcan a ningún lote no terminal, en orden de cadena,
	// y los asigna al lote indicado. Dos enqueue concurrentes nunca reclaman
	// el mismo registro.
	ClaimPending(ctx context.Context, tenantID, batchID string, limit int) ([]*entity.InvoiceRecord, error)
	// UpdateSubmissionResult actualiza únicamente el grupo de estado AEAT.
	UpdateSubmissionResult(ctx context.Context, recordID, status, responseCode string) error
	UpdateQR(ctx context.Context, recordID, qrURL, qrImage string) error
	CountPending(ctx context.Context, tenantID string) (int, error)
	// ListTenantsWithPending devuelve los tenants con registros pendientes.
	ListTenantsWithPending(ctx context.Context) ([]string, error)
}
