// Generación del QR tributario de cotejo. La URL sigue el formato de la
// especificación VERI*FACTU: nif, numserie, fecha (dd-mm-aaaa) e importe.

package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"

	"github.com/boombuler/barcode"
	qrcode "github.com/boombuler/barcode/qr"

	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/config"
)

// Tamaño del PNG en píxeles. La norma pide entre 30x30 y 40x40 mm; 300px da
// margen de sobra a cualquier densidad de impresión razonable.
const imageSize = 300

// Generator renderiza la URL de cotejo y su QR en PNG Base64.
type Generator struct {
	baseURL string
}

// NewGenerator crea el generador sobre la URL de cotejo configurada.
func NewGenerator(cfg config.AEATConfig) *Generator {
	return &Generator{baseURL: cfg.QRBaseURL}
}

var _ ledger.QRGenerator = (*Generator)(nil)

// Generate construye la URL de cotejo del registro y la codifica como QR.
func (g *Generator) Generate(record *entity.InvoiceRecord) (string, string, error) {
	if record == nil {
		return "", "", fmt.Errorf("qr: registro requerido")
	}

	cotejo, err := g.buildURL(record)
	if err != nil {
		return "", "", err
	}

	code, err := qrcode.Encode(cotejo, qrcode.M, qrcode.Auto)
	if err != nil {
		return "", "", fmt.Errorf("qr: codificar: %w", err)
	}
	code, err = barcode.Scale(code, imageSize, imageSize)
	if err != nil {
		return "", "", fmt.Errorf("qr: escalar: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", "", fmt.Errorf("qr: renderizar PNG: %w", err)
	}
	return cotejo, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (g *Generator) buildURL(record *entity.InvoiceRecord) (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("qr: URL base inválida: %w", err)
	}
	q := u.Query()
	q.Set("nif", record.NIFEmisor)
	q.Set("numserie", record.NumeroFactura)
	q.Set("fecha", record.FechaExpedicion.Format("02-01-2006"))
	q.Set("importe", record.ImporteTotal.StringFixed(2))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
