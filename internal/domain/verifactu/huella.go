// Package verifactu: cálculo de la huella SHA-256 de los registros de
// facturación según el esquema de encadenamiento VeriFactu.
// La cadena de concatenación está congelada: cambiar el orden de campos o el
// separador invalida todas las huellas ya selladas.
package verifactu

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HuellaVersion identifica la versión del esquema de concatenación.
// TipoHuella "01" = SHA-256 (catálogo AEAT).
const (
	HuellaVersion = "1.0"
	TipoHuella    = "01"
)

// HuellaParams contiene los campos fiscales que participan en la huella,
// en el orden exigido por el esquema.
type HuellaParams struct {
	NIFEmisor       string
	NumeroFactura   string
	FechaExpedicion time.Time
	TipoFactura     string // F1, F2, R1...
	CuotaTributaria decimal.Decimal
	ImporteTotal    decimal.Decimal
	RecordType      string // alta | anulacion
	HuellaAnterior  string // "" en el primer registro del tenant
}

// ComputeHuella genera la huella SHA-256 (hex en mayúsculas) del registro.
//
// Cadena (versión 1.0, separador "&", pares clave=valor):
//
//	IDEmisorFactura=<nif>&NumSerieFactura=<num>&FechaExpedicionFactura=<yyyy-mm-dd>&
//	TipoFactura=<tipo>&CuotaTotal=<cuota>&ImporteTotal=<importe>&
//	TipoRegistro=<alta|anulacion>&Huella=<anterior>
//
// Es una función pura: mismos parámetros, misma huella, en cualquier máquina.
// Montos sin separador de miles, punto decimal, 2 decimales (ej: 1210.00).
func ComputeHuella(p *HuellaParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("verifactu: HuellaParams es obligatorio")
	}
	nif := strings.ToUpper(strings.TrimSpace(p.NIFEmisor))
	if nif == "" {
		return "", fmt.Errorf("verifactu: NIFEmisor es obligatorio")
	}
	numero := strings.TrimSpace(p.NumeroFactura)
	if numero == "" {
		return "", fmt.Errorf("verifactu: NumeroFactura es obligatorio")
	}
	if p.FechaExpedicion.IsZero() {
		return "", fmt.Errorf("verifactu: FechaExpedicion es obligatoria")
	}
	if p.RecordType == "" {
		return "", fmt.Errorf("verifactu: RecordType es obligatorio")
	}

	cadena := "IDEmisorFactura=" + nif +
		"&NumSerieFactura=" + numero +
		"&FechaExpedicionFactura=" + p.FechaExpedicion.Format("2006-01-02") +
		"&TipoFactura=" + p.TipoFactura +
		"&CuotaTotal=" + formatAmount(p.CuotaTributaria) +
		"&ImporteTotal=" + formatAmount(p.ImporteTotal) +
		"&TipoRegistro=" + p.RecordType +
		"&Huella=" + p.HuellaAnterior

	hash := sha256.Sum256([]byte(cadena))
	return strings.ToUpper(hex.EncodeToString(hash[:])), nil
}

// formatAmount formatea montos para la cadena de huella: sin separador de
// miles, punto decimal, 2 decimales (ej: 1210.00).
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
