package repository

import (
	"context"
	"time"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// BatchFilter filtros de listado de lotes.
type BatchFilter struct {
	Status string
	Limit  int
	Offset int
}

// BatchRepository define el puerto de persistencia de lotes de remisión.
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.RemisionBatch) error
	GetByID(ctx context.Context, id string) (*entity.RemisionBatch, error)
	List(ctx context.Context, tenantID string, filter BatchFilter) ([]*entity.RemisionBatch, int, error)
	// ClaimForSending pasa el lote de queued a sending en una sola operación
	// condicional, fijando el sobre y la hora de envío. Devuelve false si el
	// lote ya no estaba en cola: otro envío concurrente lo reclamó antes.
	ClaimForSending(ctx context.Context, batchID, requestXML string, sentAt time.Time) (bool, error)
	// Update persiste estado, contadores, XMLs, CSV, reintentos y timestamps.
	Update(ctx context.Context, batch *entity.RemisionBatch) error
	// Delete elimina un lote vacío recién creado (enqueue sin pendientes).
	Delete(ctx context.Context, id string) error
}
