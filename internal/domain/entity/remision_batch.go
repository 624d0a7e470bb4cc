package entity

import "time"

// Estados del lote de remisión.
//
// Máquina de estados: queued → sending → {sent | partial_error | error};
// error y partial_error admiten reintento (→ sending) hasta agotar el cupo.
// De sent no se sale.
const (
	BatchStatusQueued       = "queued"
	BatchStatusSending      = "sending"
	BatchStatusSent         = "sent"
	BatchStatusPartialError = "partial_error"
	BatchStatusError        = "error"
)

// Entornos AEAT.
const (
	AEATEnvironmentTesting    = "testing"
	AEATEnvironmentProduction = "production"
)

// MaxBatchRetries es el tope de reintentos de un lote antes de requerir
// intervención del operador.
const MaxBatchRetries = 5

// RemisionBatch agrupa registros pendientes de un tenant para su envío
// conjunto a la AEAT en un único intercambio SOAP.
type RemisionBatch struct {
	ID              string
	TenantID        string
	Status          string
	TotalRecords    int
	AcceptedRecords int
	RejectedRecords int
	AEATEnvironment string
	CSV             string // Código Seguro de Verificación devuelto por la AEAT
	RetryCount      int
	ErrorMessage    string
	RequestXML      string
	ResponseXML     string
	SentAt          *time.Time
	ResponseAt      *time.Time
	CreatedAt       time.Time
}

// IsRetryable indica si el lote admite reintento según su estado y cupo.
func (b *RemisionBatch) IsRetryable() bool {
	if b.Status != BatchStatusError && b.Status != BatchStatusPartialError {
		return false
	}
	return b.RetryCount < MaxBatchRetries
}

// IsTerminalForClaim indica si los registros del lote pueden ser reclamados
// por un lote nuevo. Mientras a un lote fallido le quede cupo de reintento
// sus registros pendientes siguen siendo suyos: el reintento del lote y el
// encolado de pendientes nunca remiten el mismo registro por separado.
func (b *RemisionBatch) IsTerminalForClaim() bool {
	if b.Status == BatchStatusSent {
		return true
	}
	if b.Status == BatchStatusError || b.Status == BatchStatusPartialError {
		return b.RetryCount >= MaxBatchRetries
	}
	return false
}
