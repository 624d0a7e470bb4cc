package entity

import "time"

// Tipos de evento del log SIF (Sistema Informático de Facturación).
const (
	EventRecordCreate = "RECORD_CREATE"
	EventRecordCancel = "RECORD_CANCEL"
	EventAEATSubmit   = "AEAT_SUBMIT"
	EventAEATResponse = "AEAT_RESPONSE"
	EventBatchFailed  = "BATCH_FAILED"
	EventChainVerify  = "CHAIN_VERIFY"
	EventChainBreak   = "CHAIN_BREAK"
	EventCertWarning  = "CERT_WARNING"
	EventCertUpload   = "CERT_UPLOAD"
	EventConfigUpdate = "CONFIG_UPDATE"
	EventImmutable    = "IMMUTABLE_VIOLATION"
)

// Severidades de evento.
const (
	SeverityInfo     = "info"
	SeverityNotice   = "notice"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AuditEvent es una entrada inmutable del log de auditoría. Lleva una huella
// SHA-256 sobre su propio contenido como evidencia de integridad; nunca se
// actualiza ni se borra tras su creación.
type AuditEvent struct {
	ID         string
	TenantID   string
	EventType  string
	Severity   string
	Detail     map[string]any // Payload estructurado libre (JSONB)
	RecordID   string         // Referencia opcional a un InvoiceRecord
	Actor      string
	SourceAddr string
	EventHash  string
	CreatedAt  time.Time
}
