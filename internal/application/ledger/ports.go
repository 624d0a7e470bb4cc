package ledger

import (
	"context"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// ChainTx expone los repositorios ligados a una misma transacción de sellado.
type ChainTx interface {
	Records() repository.RecordRepository
	TenantConfigs() repository.TenantConfigRepository
}

// ChainTxRunner ejecuta fn dentro de una transacción. Si fn devuelve error la
// transacción se deshace por completo: el insert del registro y el avance de
// la cabeza de cadena son atómicos.
type ChainTxRunner interface {
	RunChain(ctx context.Context, fn func(tx ChainTx) error) error
}

// QRGenerator genera la URL de cotejo y la imagen QR de un registro sellado.
type QRGenerator interface {
	Generate(record *entity.InvoiceRecord) (url string, pngBase64 string, err error)
}
