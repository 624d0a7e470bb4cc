package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de registro VeriFactu.
const (
	RecordTypeAlta      = "alta"      // Registro de facturación de alta
	RecordTypeAnulacion = "anulacion" // Registro de facturación de anulación
)

// Estados de remisión a la AEAT.
const (
	AEATStatusPending  = "pending"  // Pendiente de remisión
	AEATStatusAccepted = "accepted" // Aceptado por la AEAT (Correcto o AceptadoConErrores)
	AEATStatusRejected = "rejected" // Rechazado por la AEAT con código de error
	AEATStatusError    = "error"    // Error técnico durante la remisión
)

// InvoiceRecord es un registro de facturación VeriFactu sellado en la cadena
// de huellas del tenant. Una vez creado, los campos fiscales y de cadena son
// inmutables; solo los campos de estado AEAT cambian tras la remisión.
type InvoiceRecord struct {
	ID         string
	TenantID   string
	Seq        int64  // Orden de creación dentro del tenant (asignado por la DB)
	RecordType string // alta | anulacion

	// Carga fiscal (sellada junto con la huella).
	NIFEmisor       string
	NombreEmisor    string
	NumeroFactura   string // {SERIE}-{YYYY}-{N}
	FechaExpedicion time.Time
	TipoFactura     string // F1, F2, R1... (catálogo AEAT)
	ClaveRegimen    string // 01 = régimen general
	BaseImponible   decimal.Decimal
	TipoImpositivo  decimal.Decimal
	CuotaTributaria decimal.Decimal
	ImporteTotal    decimal.Decimal

	// Cadena de huellas (SHA-256).
	Huella         string // Huella propia del registro
	HuellaAnterior string // Huella del registro anterior del tenant; "" en el primero

	// Estado de remisión (única mutación permitida tras el sellado).
	AEATStatus       string
	AEATResponseCode string
	RemisionBatchID  string // Referencia al último lote que lo incluyó

	// Verificación QR.
	QRURL   string
	QRImage string // PNG en Base64

	CreatedAt time.Time
}

// IsAlta indica si el registro es de alta.
func (r *InvoiceRecord) IsAlta() bool { return r.RecordType == RecordTypeAlta }

// IsAnulacion indica si el registro es de anulación.
func (r *InvoiceRecord) IsAnulacion() bool { return r.RecordType == RecordTypeAnulacion }

// IsPrimerRegistro indica si el registro abre la cadena del tenant.
func (r *InvoiceRecord) IsPrimerRegistro() bool { return r.HuellaAnterior == "" }
