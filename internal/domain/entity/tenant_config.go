package entity

import "time"

// TenantConfig es la configuración VeriFactu de un tenant: identidad fiscal
// del emisor, serie de facturación y cabeza de la cadena de huellas.
//
// LastChainHuella es el único recurso compartido con contención: toda
// creación de registro la lee y la avanza con compare-and-swap.
type TenantConfig struct {
	ID                string
	TenantID          string
	NIF               string
	NombreFiscal      string
	SerieFacturacion  string // Prefijo de la serie (ej. "VF")
	AEATEnvironment   string // testing | production
	AutoRemision      bool   // Si el scheduler remite sus pendientes automáticamente
	IsActive          bool
	LastChainHuella   string // Huella del último registro sellado; "" si no hay registros
	LastChainRecordID string
	NextInvoiceSeq    int64 // Siguiente número de la serie

	CertificateSubject    string
	CertificateValidUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
