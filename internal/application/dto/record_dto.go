package dto

import (
	"time"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// CreateRecordRequest petición de alta manual de un registro de facturación.
// Los montos llegan como strings decimales (ej. "1000.00") para no perder
// precisión en el JSON.
type CreateRecordRequest struct {
	TipoFactura     string `json:"tipo_factura"`     // F1 por defecto
	FechaExpedicion string `json:"fecha_expedicion"` // YYYY-MM-DD; hoy por defecto
	BaseImponible   string `json:"base_imponible"`
	TipoImpositivo  string `json:"tipo_impositivo"`
	CuotaTributaria string `json:"cuota_tributaria"`
	ImporteTotal    string `json:"importe_total"`
}

// RecordResponse representación JSON de un registro.
type RecordResponse struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Seq              int64     `json:"seq"`
	RecordType       string    `json:"record_type"`
	NIFEmisor        string    `json:"nif_emisor"`
	NombreEmisor     string    `json:"nombre_emisor"`
	NumeroFactura    string    `json:"numero_factura"`
	FechaExpedicion  string    `json:"fecha_expedicion"`
	TipoFactura      string    `json:"tipo_factura"`
	ClaveRegimen     string    `json:"clave_regimen"`
	BaseImponible    string    `json:"base_imponible"`
	TipoImpositivo   string    `json:"tipo_impositivo"`
	CuotaTributaria  string    `json:"cuota_tributaria"`
	ImporteTotal     string    `json:"importe_total"`
	Huella           string    `json:"huella"`
	HuellaAnterior   string    `json:"huella_anterior"`
	AEATStatus       string    `json:"aeat_status"`
	AEATResponseCode string    `json:"aeat_response_code,omitempty"`
	RemisionBatchID  string    `json:"remision_batch_id,omitempty"`
	QRURL            string    `json:"qr_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// FromRecord serializa la entidad para la API.
func FromRecord(r *entity.InvoiceRecord) RecordResponse {
	return RecordResponse{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Seq:              r.Seq,
		RecordType:       r.RecordType,
		NIFEmisor:        r.NIFEmisor,
		NombreEmisor:     r.NombreEmisor,
		NumeroFactura:    r.NumeroFactura,
		FechaExpedicion:  r.FechaExpedicion.Format("2006-01-02"),
		TipoFactura:      r.TipoFactura,
		ClaveRegimen:     r.ClaveRegimen,
		BaseImponible:    r.BaseImponible.StringFixed(2),
		TipoImpositivo:   r.TipoImpositivo.StringFixed(2),
		CuotaTributaria:  r.CuotaTributaria.StringFixed(2),
		ImporteTotal:     r.ImporteTotal.StringFixed(2),
		Huella:           r.Huella,
		HuellaAnterior:   r.HuellaAnterior,
		AEATStatus:       r.AEATStatus,
		AEATResponseCode: r.AEATResponseCode,
		RemisionBatchID:  r.RemisionBatchID,
		QRURL:            r.QRURL,
		CreatedAt:        r.CreatedAt,
	}
}

// VerificationResponse resultado de la verificación de cadena para la API.
type VerificationResponse struct {
	IsValid         bool   `json:"is_valid"`
	TotalRecords    int    `json:"total_records"`
	ValidRecords    int    `json:"valid_records"`
	BreakAtRecordID string `json:"break_at_record_id,omitempty"`
}
