package qr

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/config"
)

func testRecord() *entity.InvoiceRecord {
	return &entity.InvoiceRecord{
		NIFEmisor:       "12345678Z",
		NumeroFactura:   "VF-2026-1",
		FechaExpedicion: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ImporteTotal:    decimal.RequireFromString("1210.00"),
	}
}

func TestGenerateURLDeCotejo(t *testing.T) {
	gen := NewGenerator(config.AEATConfig{QRBaseURL: "https://prewww2.aeat.es/wlpl/TIKE-CONT/ValidarQR"})

	url, pngB64, err := gen.Generate(testRecord())
	require.NoError(t, err)

	assert.Contains(t, url, "https://prewww2.aeat.es/wlpl/TIKE-CONT/ValidarQR?")
	assert.Contains(t, url, "nif=12345678Z")
	assert.Contains(t, url, "numserie=VF-2026-1")
	assert.Contains(t, url, "fecha=10-03-2026")
	assert.Contains(t, url, "importe=1210.00")

	// El PNG debe decodificar y empezar con la firma del formato.
	raw, err := base64.StdEncoding.DecodeString(pngB64)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])
}

func TestGenerateValidaEntrada(t *testing.T) {
	gen := NewGenerator(config.AEATConfig{QRBaseURL: "https://prewww2.aeat.es/wlpl/TIKE-CONT/ValidarQR"})

	_, _, err := gen.Generate(nil)
	assert.Error(t, err)
}
