package remision

import (
	"context"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// RemisionTx expone los repositorios ligados a la transacción de encolado.
type RemisionTx interface {
	Records() repository.RecordRepository
	Batches() repository.BatchRepository
}

// RemisionTxRunner ejecuta fn dentro de una transacción: la creación del lote
// y la reclamación de sus registros son atómicas.
type RemisionTxRunner interface {
	RunRemision(ctx context.Context, fn func(tx RemisionTx) error) error
}

// EnvelopeBuilder construye el sobre SOAP RegFactuSistemaFacturacion con los
// registros del lote.
type EnvelopeBuilder interface {
	BuildEnvelope(cfg *entity.TenantConfig, records []*entity.InvoiceRecord) (string, error)
}

// RecordResult es el veredicto de la AEAT sobre un registro del envío.
type RecordResult struct {
	NumeroFactura string
	RecordType    string
	Accepted      bool
	Code          string // Código de error AEAT si fue rechazado
	Message       string
}

// SubmissionResponse es la respuesta de la AEAT a un envío completo.
type SubmissionResponse struct {
	EstadoEnvio string // Correcto | ParcialmenteCorrecto | Incorrecto
	CSV         string
	ResponseXML string
	Results     []RecordResult
}

// AEATClient remite el sobre firmado al endpoint del entorno indicado con el
// certificado del tenant. Un error devuelto es un fallo de transporte (red,
// TLS, timeout, HTTP no-200); un rechazo funcional llega dentro de la
// respuesta, nunca como error.
type AEATClient interface {
	Submit(ctx context.Context, tenantID, environment, requestXML string) (*SubmissionResponse, error)
}
