package tenantcfg

import (
	"context"
	"time"
)

// CertificateInfo resume el certificado almacenado de un tenant.
type CertificateInfo struct {
	Subject   string
	NotBefore time.Time
	NotAfter  time.Time
}

// IsValid indica si el certificado está dentro de su ventana de validez.
func (i *CertificateInfo) IsValid() bool {
	now := time.Now()
	return now.After(i.NotBefore) && now.Before(i.NotAfter)
}

// ExpiresWithin indica si el certificado caduca dentro del plazo dado.
func (i *CertificateInfo) ExpiresWithin(d time.Duration) bool {
	return time.Now().Add(d).After(i.NotAfter)
}

// CertificateStore guarda y consulta el certificado PKCS#12 de cada tenant.
type CertificateStore interface {
	Store(tenantID string, p12 []byte, password string) (*CertificateInfo, error)
	Inspect(tenantID string) (*CertificateInfo, error)
	Has(tenantID string) bool
	Delete(tenantID string) error
}

// ConnectionTester comprueba que el canal con la AEAT funciona con el
// certificado del tenant sin remitir ningún registro.
type ConnectionTester interface {
	TestConnection(ctx context.Context, tenantID, environment string) error
}
