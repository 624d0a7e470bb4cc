// Gestión de certificados .p12 por tenant para el TLS mutuo con la AEAT.

package aeat

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"

	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/pkg/config"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// CertificateManager guarda y carga los certificados .p12 de cada tenant en
// el directorio configurado. El archivo de contraseña queda junto al .p12 con
// permisos restringidos.
type CertificateManager struct {
	dir string
	log *logger.Logger
}

// NewCertificateManager crea el gestor sobre el directorio de certificados.
func NewCertificateManager(cfg config.AEATConfig, log *logger.Logger) *CertificateManager {
	return &CertificateManager{dir: cfg.CertDir, log: log}
}

var _ tenantcfg.CertificateStore = (*CertificateManager)(nil)

func (m *CertificateManager) certPath(tenantID string) string {
	return filepath.Join(m.dir, tenantID+".p12")
}

func (m *CertificateManager) passPath(tenantID string) string {
	return filepath.Join(m.dir, tenantID+".pass")
}

// Store valida y persiste el certificado .p12 del tenant. Rechaza archivos
// que no decodifican, sin llave RSA o fuera de su ventana de validez.
func (m *CertificateManager) Store(tenantID string, p12Data []byte, password string) (*tenantcfg.CertificateInfo, error) {
	info, err := inspect(p12Data, password)
	if err != nil {
		return nil, err
	}
	if !info.IsValid() {
		return nil, fmt.Errorf("%w: fuera de la ventana de validez (expira %s)",
			domain.ErrInvalidCertificate, info.NotAfter.Format("2006-01-02"))
	}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, fmt.Errorf("aeat: crear directorio de certificados: %w", err)
	}
	if err := os.WriteFile(m.certPath(tenantID), p12Data, 0o600); err != nil {
		return nil, fmt.Errorf("aeat: guardar certificado: %w", err)
	}
	if err := os.WriteFile(m.passPath(tenantID), []byte(password), 0o600); err != nil {
		return nil, fmt.Errorf("aeat: guardar contraseña: %w", err)
	}

	m.log.Info().
		Str("tenant_id", tenantID).
		Str("subject", info.Subject).
		Time("not_after", info.NotAfter).
		Msg("Certificado AEAT almacenado")
	return info, nil
}

// Has indica si el tenant tiene certificado almacenado.
func (m *CertificateManager) Has(tenantID string) bool {
	_, err := os.Stat(m.certPath(tenantID))
	return err == nil
}

// Load carga el certificado del tenant listo para TLS mutuo.
func (m *CertificateManager) Load(tenantID string) (tls.Certificate, error) {
	data, err := os.ReadFile(m.certPath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return tls.Certificate{}, domain.ErrNoCertificate
		}
		return tls.Certificate{}, fmt.Errorf("aeat: leer certificado: %w", err)
	}
	pass, err := os.ReadFile(m.passPath(tenantID))
	if err != nil && !os.IsNotExist(err) {
		return tls.Certificate{}, fmt.Errorf("aeat: leer contraseña: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, string(pass))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", domain.ErrInvalidCertificate, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// Inspect devuelve subject y ventana de validez del certificado almacenado.
func (m *CertificateManager) Inspect(tenantID string) (*tenantcfg.CertificateInfo, error) {
	data, err := os.ReadFile(m.certPath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoCertificate
		}
		return nil, fmt.Errorf("aeat: leer certificado: %w", err)
	}
	pass, err := os.ReadFile(m.passPath(tenantID))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("aeat: leer contraseña: %w", err)
	}
	return inspect(data, string(pass))
}

// Delete elimina el certificado del tenant.
func (m *CertificateManager) Delete(tenantID string) error {
	if err := os.Remove(m.certPath(tenantID)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrNoCertificate
		}
		return fmt.Errorf("aeat: eliminar certificado: %w", err)
	}
	_ = os.Remove(m.passPath(tenantID))
	return nil
}

func inspect(p12Data []byte, password string) (*tenantcfg.CertificateInfo, error) {
	priv, cert, err := pkcs12.Decode(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCertificate, err)
	}
	if _, ok := priv.(*rsa.PrivateKey); !ok {
		return nil, fmt.Errorf("%w: la llave privada debe ser RSA", domain.ErrInvalidCertificate)
	}
	return certInfo(cert), nil
}

func certInfo(cert *x509.Certificate) *tenantcfg.CertificateInfo {
	return &tenantcfg.CertificateInfo{
		Subject:   cert.Subject.String(),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
	}
}
