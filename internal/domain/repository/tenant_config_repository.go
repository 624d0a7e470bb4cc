package repository

import (
	"context"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// TenantConfigRepository define el puerto de persistencia de la configuración
// VeriFactu por tenant, incluida la cabeza de la cadena de huellas.
type TenantConfigRepository interface {
	Create(ctx context.Context, cfg *entity.TenantConfig) error
	GetByTenantID(ctx context.Context, tenantID string) (*entity.TenantConfig, error)
	ListActive(ctx context.Context) ([]*entity.TenantConfig, error)
	// Update persiste los campos editables (NIF, nombre, serie, entorno, flags,
	// datos de certificado). No toca la cabeza de cadena.
	Update(ctx context.Context, cfg *entity.TenantConfig) error
	// AdvanceChainHead avanza la cabeza de cadena con compare-and-swap:
	// solo escribe si la huella actual sigue siendo expectedHuella. Devuelve
	// false si otro registro ganó la carrera (el caller debe abortar con
	// ErrChainConflict y deshacer su escritura).
	AdvanceChainHead(ctx context.Context, tenantID, expectedHuella, newHuella, recordID string) (bool, error)
	// NextInvoiceSeq reserva y devuelve el siguiente número de la serie.
	NextInvoiceSeq(ctx context.Context, tenantID string) (int64, error)
}
