package aeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

const respuestaParcialXML = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tikeV1.0/cont/ws/RespuestaSuministro.xsd">
      <tikR:CSV>CSV-TEST-123</tikR:CSV>
      <tikR:EstadoEnvio>ParcialmenteCorrecto</tikR:EstadoEnvio>
      <tikR:RespuestaLinea>
        <tikR:IDFactura>
          <tikR:IDEmisorFactura>12345678Z</tikR:IDEmisorFactura>
          <tikR:NumSerieFactura>VF-2026-1</tikR:NumSerieFactura>
          <tikR:FechaExpedicionFactura>10-03-2026</tikR:FechaExpedicionFactura>
        </tikR:IDFactura>
        <tikR:EstadoRegistro>Correcto</tikR:EstadoRegistro>
      </tikR:RespuestaLinea>
      <tikR:RespuestaLinea>
        <tikR:IDFactura>
          <tikR:IDEmisorFactura>12345678Z</tikR:IDEmisorFactura>
          <tikR:NumSerieFactura>VF-2026-2</tikR:NumSerieFactura>
          <tikR:FechaExpedicionFactura>11-03-2026</tikR:FechaExpedicionFactura>
        </tikR:IDFactura>
        <tikR:Operacion>
          <tikR:TipoOperacion>Anulacion</tikR:TipoOperacion>
        </tikR:Operacion>
        <tikR:EstadoRegistro>Incorrecto</tikR:EstadoRegistro>
        <tikR:CodigoErrorRegistro>4102</tikR:CodigoErrorRegistro>
        <tikR:DescripcionErrorRegistro>NIF no identificado</tikR:DescripcionErrorRegistro>
      </tikR:RespuestaLinea>
    </tikR:RespuestaRegFactuSistemaFacturacion>
  </env:Body>
</env:Envelope>`

func TestParseResponseParcialmenteCorrecto(t *testing.T) {
	resp, err := ParseResponse(respuestaParcialXML)
	require.NoError(t, err)

	assert.Equal(t, EstadoEnvioParcial, resp.EstadoEnvio)
	assert.Equal(t, "CSV-TEST-123", resp.CSV)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "VF-2026-1", resp.Results[0].NumeroFactura)
	assert.Equal(t, entity.RecordTypeAlta, resp.Results[0].RecordType)
	assert.True(t, resp.Results[0].Accepted)
	assert.Empty(t, resp.Results[0].Code)

	assert.Equal(t, "VF-2026-2", resp.Results[1].NumeroFactura)
	assert.Equal(t, entity.RecordTypeAnulacion, resp.Results[1].RecordType)
	assert.False(t, resp.Results[1].Accepted)
	assert.Equal(t, "4102", resp.Results[1].Code)
	assert.Equal(t, "NIF no identificado", resp.Results[1].Message)
}

func TestParseResponseAceptadoConErrores(t *testing.T) {
	xmlStr := `<Envelope><Body><RespuestaRegFactuSistemaFacturacion>
		<EstadoEnvio>Correcto</EstadoEnvio>
		<RespuestaLinea>
			<IDFactura><NumSerieFactura>VF-2026-3</NumSerieFactura></IDFactura>
			<EstadoRegistro>AceptadoConErrores</EstadoRegistro>
			<CodigoErrorRegistro>2000</CodigoErrorRegistro>
		</RespuestaLinea>
	</RespuestaRegFactuSistemaFacturacion></Body></Envelope>`

	resp, err := ParseResponse(xmlStr)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Accepted)
	assert.Equal(t, "2000", resp.Results[0].Code)
}

func TestParseResponseFaultEsError(t *testing.T) {
	xmlStr := `<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
		<env:Body>
			<env:Fault>
				<faultcode>env:Client</faultcode>
				<faultstring>Certificado no admitido</faultstring>
			</env:Fault>
		</env:Body>
	</env:Envelope>`

	resp, err := ParseResponse(xmlStr)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Certificado no admitido")
}

func TestParseResponseMalformada(t *testing.T) {
	_, err := ParseResponse("esto no es XML")
	assert.Error(t, err)

	_, err = ParseResponse("<Envelope><Body></Body></Envelope>")
	assert.Error(t, err)
}
