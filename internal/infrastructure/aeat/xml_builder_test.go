package aeat

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/config"
)

func testBuilder() *XMLBuilder {
	return NewXMLBuilder(config.AEATConfig{
		SystemName:    "VerifactuAPI",
		SystemID:      "VF",
		SystemVersion: "1.0",
		InstallNumber: "001",
	})
}

func testTenant() *entity.TenantConfig {
	return &entity.TenantConfig{
		TenantID:         "tenant-1",
		NIF:              "12345678Z",
		NombreFiscal:     "Empresa Demo SL",
		SerieFacturacion: "VF",
	}
}

func altaRecord() *entity.InvoiceRecord {
	return &entity.InvoiceRecord{
		ID:              "rec-1",
		TenantID:        "tenant-1",
		RecordType:      entity.RecordTypeAlta,
		NIFEmisor:       "12345678Z",
		NombreEmisor:    "Empresa Demo SL",
		NumeroFactura:   "VF-2026-1",
		FechaExpedicion: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		TipoFactura:     "F1",
		ClaveRegimen:    "01",
		BaseImponible:   decimal.RequireFromString("1000.00"),
		TipoImpositivo:  decimal.RequireFromString("21.00"),
		CuotaTributaria: decimal.RequireFromString("210.00"),
		ImporteTotal:    decimal.RequireFromString("1210.00"),
		Huella:          "AAAA1111",
		CreatedAt:       time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestBuildEnvelopeAltaPrimerRegistro(t *testing.T) {
	xmlStr, err := testBuilder().BuildEnvelope(testTenant(), []*entity.InvoiceRecord{altaRecord()})
	require.NoError(t, err)

	assert.Contains(t, xmlStr, "<sum:RegFactuSistemaFacturacion>")
	assert.Contains(t, xmlStr, "<sum1:ObligadoEmision>")
	assert.Contains(t, xmlStr, "<sum1:NIF>12345678Z</sum1:NIF>")
	assert.Contains(t, xmlStr, "<sum1:RegistroAlta>")
	assert.Contains(t, xmlStr, "<sum1:NumSerieFactura>VF-2026-1</sum1:NumSerieFactura>")
	assert.Contains(t, xmlStr, "<sum1:FechaExpedicionFactura>10-03-2026</sum1:FechaExpedicionFactura>")
	assert.Contains(t, xmlStr, "<sum1:TipoFactura>F1</sum1:TipoFactura>")
	assert.Contains(t, xmlStr, "<sum1:BaseImponibleOimporteNoSujeto>1000.00</sum1:BaseImponibleOimporteNoSujeto>")
	assert.Contains(t, xmlStr, "<sum1:ImporteTotal>1210.00</sum1:ImporteTotal>")
	assert.Contains(t, xmlStr, "<sum1:PrimerRegistro>S</sum1:PrimerRegistro>")
	assert.Contains(t, xmlStr, "<sum1:TipoHuella>01</sum1:TipoHuella>")
	assert.Contains(t, xmlStr, "<sum1:Huella>AAAA1111</sum1:Huella>")
	assert.NotContains(t, xmlStr, "RegistroAnterior")
}

func TestBuildEnvelopeEncadenaConHuellaAnterior(t *testing.T) {
	record := altaRecord()
	record.HuellaAnterior = "BBBB2222"

	xmlStr, err := testBuilder().BuildEnvelope(testTenant(), []*entity.InvoiceRecord{record})
	require.NoError(t, err)

	assert.Contains(t, xmlStr, "<sum1:RegistroAnterior>")
	assert.Contains(t, xmlStr, "<sum1:Huella>BBBB2222</sum1:Huella>")
	assert.NotContains(t, xmlStr, "PrimerRegistro")
}

func TestBuildEnvelopeAnulacion(t *testing.T) {
	record := altaRecord()
	record.RecordType = entity.RecordTypeAnulacion
	record.HuellaAnterior = "BBBB2222"

	xmlStr, err := testBuilder().BuildEnvelope(testTenant(), []*entity.InvoiceRecord{record})
	require.NoError(t, err)

	assert.Contains(t, xmlStr, "<sum1:RegistroAnulacion>")
	assert.Contains(t, xmlStr, "<sum1:NumSerieFacturaAnulada>VF-2026-1</sum1:NumSerieFacturaAnulada>")
	assert.Contains(t, xmlStr, "<sum1:FechaExpedicionFacturaAnulada>10-03-2026</sum1:FechaExpedicionFacturaAnulada>")
	assert.NotContains(t, xmlStr, "<sum1:Desglose>")
}

func TestBuildEnvelopeVariosRegistros(t *testing.T) {
	first := altaRecord()
	second := altaRecord()
	second.NumeroFactura = "VF-2026-2"
	second.HuellaAnterior = first.Huella

	xmlStr, err := testBuilder().BuildEnvelope(testTenant(), []*entity.InvoiceRecord{first, second})
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(xmlStr, "<sum:RegistroFactura>"))
	assert.Equal(t, 2, strings.Count(xmlStr, "<sum1:SistemaInformatico>"))
}

func TestBuildEnvelopeValidaEntrada(t *testing.T) {
	_, err := testBuilder().BuildEnvelope(testTenant(), nil)
	assert.Error(t, err)

	_, err = testBuilder().BuildEnvelope(nil, []*entity.InvoiceRecord{altaRecord()})
	assert.Error(t, err)

	record := altaRecord()
	record.RecordType = "desconocido"
	_, err = testBuilder().BuildEnvelope(testTenant(), []*entity.InvoiceRecord{record})
	assert.Error(t, err)
}
