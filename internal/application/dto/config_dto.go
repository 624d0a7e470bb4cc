package dto

import (
	"time"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// UpdateTenantConfigRequest campos editables de la configuración del tenant.
// Punteros para distinguir "no enviado" de "vaciar".
type UpdateTenantConfigRequest struct {
	NIF              *string `json:"nif"`
	NombreFiscal     *string `json:"nombre_fiscal"`
	SerieFacturacion *string `json:"serie_facturacion"`
	AEATEnvironment  *string `json:"aeat_environment"`
	AutoRemision     *bool   `json:"auto_remision"`
	IsActive         *bool   `json:"is_active"`
}

// TenantConfigResponse representación JSON de la configuración.
type TenantConfigResponse struct {
	ID                    string     `json:"id"`
	TenantID              string     `json:"tenant_id"`
	NIF                   string     `json:"nif"`
	NombreFiscal          string     `json:"nombre_fiscal"`
	SerieFacturacion      string     `json:"serie_facturacion"`
	AEATEnvironment       string     `json:"aeat_environment"`
	AutoRemision          bool       `json:"auto_remision"`
	IsActive              bool       `json:"is_active"`
	LastChainHuella       string     `json:"last_chain_huella,omitempty"`
	CertificateSubject    string     `json:"certificate_subject,omitempty"`
	CertificateValidUntil *time.Time `json:"certificate_valid_until,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// FromTenantConfig serializa la entidad para la API.
func FromTenantConfig(c *entity.TenantConfig) TenantConfigResponse {
	return TenantConfigResponse{
		ID:                    c.ID,
		TenantID:              c.TenantID,
		NIF:                   c.NIF,
		NombreFiscal:          c.NombreFiscal,
		SerieFacturacion:      c.SerieFacturacion,
		AEATEnvironment:       c.AEATEnvironment,
		AutoRemision:          c.AutoRemision,
		IsActive:              c.IsActive,
		LastChainHuella:       c.LastChainHuella,
		CertificateSubject:    c.CertificateSubject,
		CertificateValidUntil: c.CertificateValidUntil,
		CreatedAt:             c.CreatedAt,
	}
}

// UploadCertificateRequest subida del certificado PKCS#12 en Base64.
type UploadCertificateRequest struct {
	Certificate string `json:"certificate"` // .p12 en Base64
	Password    string `json:"password"`
}

// CertificateStatusResponse estado del certificado del tenant.
type CertificateStatusResponse struct {
	HasCertificate bool       `json:"has_certificate"`
	IsValid        bool       `json:"is_valid,omitempty"`
	Subject        string     `json:"subject,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}
