// Cliente SOAP de remisión VERI*FACTU. Autentica por TLS mutuo con el
// certificado del tenant y distingue fallo de transporte (error) de rechazo
// funcional (dentro de la respuesta).

package aeat

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/application/tenantcfg"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/config"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

const (
	soapAction      = "RegFactuSistemaFacturacion"
	maxResponseSize = 1 << 20 // 1 MB
)

// SOAPClient implementa la remisión contra los endpoints de la AEAT.
type SOAPClient struct {
	cfg    config.AEATConfig
	certs  *CertificateManager
	signer *Signer
	log    *logger.Logger
}

// NewSOAPClient crea el cliente de remisión.
func NewSOAPClient(cfg config.AEATConfig, certs *CertificateManager, signer *Signer, log *logger.Logger) *SOAPClient {
	return &SOAPClient{cfg: cfg, certs: certs, signer: signer, log: log}
}

var (
	_ remision.AEATClient        = (*SOAPClient)(nil)
	_ tenantcfg.ConnectionTester = (*SOAPClient)(nil)
)

// Submit firma el sobre con el certificado del tenant y lo remite al endpoint
// del entorno indicado. Un error devuelto es siempre de transporte o de
// protocolo; los rechazos por registro llegan dentro de la respuesta.
func (c *SOAPClient) Submit(ctx context.Context, tenantID, environment, requestXML string) (*remision.SubmissionResponse, error) {
	cert, err := c.certs.Load(tenantID)
	if err != nil {
		return nil, fmt.Errorf("cargar certificado: %w", err)
	}

	signedXML, err := c.signer.Sign([]byte(requestXML), cert)
	if err != nil {
		return nil, fmt.Errorf("firmar envío: %w", err)
	}

	endpoint := c.endpointFor(environment)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(signedXML)))
	if err != nil {
		return nil, fmt.Errorf("crear petición: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	httpClient := c.httpClientFor(cert)
	start := time.Now()
	httpResp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enviar a AEAT: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("leer respuesta AEAT: %w", err)
	}

	c.log.Debug().
		Str("tenant_id", tenantID).
		Str("environment", environment).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Intercambio SOAP con la AEAT")

	// La AEAT devuelve los Fault con HTTP 500; el detalle va en el cuerpo.
	if httpResp.StatusCode != http.StatusOK {
		if resp, parseErr := ParseResponse(string(body)); parseErr == nil && resp != nil {
			return resp, nil
		}
		return nil, fmt.Errorf("AEAT respondió HTTP %d: %s", httpResp.StatusCode, truncate(string(body), 300))
	}

	return ParseResponse(string(body))
}

// TestConnection negocia el TLS mutuo contra el endpoint del entorno sin
// remitir ningún registro. Cualquier respuesta HTTP vale: lo que se prueba es
// el canal y el certificado, no el contenido.
func (c *SOAPClient) TestConnection(ctx context.Context, tenantID, environment string) error {
	cert, err := c.certs.Load(tenantID)
	if err != nil {
		return fmt.Errorf("cargar certificado: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointFor(environment), nil)
	if err != nil {
		return fmt.Errorf("crear petición: %w", err)
	}
	resp, err := c.httpClientFor(cert).Do(req)
	if err != nil {
		return fmt.Errorf("conectar con AEAT: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return nil
}

func (c *SOAPClient) endpointFor(environment string) string {
	if environment == entity.AEATEnvironmentProduction {
		return c.cfg.ProductionURL
	}
	return c.cfg.TestingURL
}

// httpClientFor construye un cliente con TLS mutuo para el certificado dado.
// No se cachea: el certificado del tenant puede reemplazarse en caliente.
func (c *SOAPClient) httpClientFor(cert tls.Certificate) *http.Client {
	return &http.Client{
		Timeout: time.Duration(c.cfg.TimeoutSec) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
