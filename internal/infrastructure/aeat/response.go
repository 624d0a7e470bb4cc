// Parseo de la respuesta SOAP de la AEAT a un envío RegFactuSistemaFacturacion.

package aeat

import (
	"encoding/xml"
	"fmt"

	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
)

// Estados de envío que devuelve la AEAT.
const (
	EstadoEnvioCorrecto      = "Correcto"
	EstadoEnvioParcial       = "ParcialmenteCorrecto"
	EstadoEnvioIncorrecto    = "Incorrecto"
	estadoRegistroCorrecto   = "Correcto"
	estadoRegistroConErrores = "AceptadoConErrores"
	tipoOperacionAnulacion   = "Anulacion"
)

// soapResponseEnvelope mapea el sobre SOAP de respuesta. Los espacios de
// nombres se omiten a propósito: encoding/xml casa por nombre local.
type soapResponseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Respuesta *respuestaRegFactu `xml:"RespuestaRegFactuSistemaFacturacion"`
		Fault     *soapFault         `xml:"Fault"`
	} `xml:"Body"`
}

type soapFault struct {
	Code    string `xml:"faultcode"`
	Message string `xml:"faultstring"`
}

type respuestaRegFactu struct {
	CSV         string           `xml:"CSV"`
	EstadoEnvio string           `xml:"EstadoEnvio"`
	Lineas      []respuestaLinea `xml:"RespuestaLinea"`
}

type respuestaLinea struct {
	IDFactura struct {
		IDEmisorFactura        string `xml:"IDEmisorFactura"`
		NumSerieFactura        string `xml:"NumSerieFactura"`
		FechaExpedicionFactura string `xml:"FechaExpedicionFactura"`
	} `xml:"IDFactura"`
	Operacion struct {
		TipoOperacion string `xml:"TipoOperacion"`
	} `xml:"Operacion"`
	EstadoRegistro           string `xml:"EstadoRegistro"`
	CodigoErrorRegistro      string `xml:"CodigoErrorRegistro"`
	DescripcionErrorRegistro string `xml:"DescripcionErrorRegistro"`
}

// ParseResponse interpreta el XML de respuesta de la AEAT. Un Fault SOAP
// invalida el envío completo y se devuelve como error: ningún registro fue
// procesado, el lote debe reintentarse.
func ParseResponse(responseXML string) (*remision.SubmissionResponse, error) {
	var env soapResponseEnvelope
	if err := xml.Unmarshal([]byte(responseXML), &env); err != nil {
		return nil, fmt.Errorf("aeat: parsear respuesta: %w", err)
	}
	if env.Body.Fault != nil {
		return nil, fmt.Errorf("aeat: fault SOAP %s: %s", env.Body.Fault.Code, env.Body.Fault.Message)
	}
	if env.Body.Respuesta == nil {
		return nil, fmt.Errorf("aeat: respuesta sin cuerpo RespuestaRegFactuSistemaFacturacion")
	}

	resp := &remision.SubmissionResponse{
		EstadoEnvio: env.Body.Respuesta.EstadoEnvio,
		CSV:         env.Body.Respuesta.CSV,
		ResponseXML: responseXML,
	}
	for _, linea := range env.Body.Respuesta.Lineas {
		recordType := entity.RecordTypeAlta
		if linea.Operacion.TipoOperacion == tipoOperacionAnulacion {
			recordType = entity.RecordTypeAnulacion
		}
		accepted := linea.EstadoRegistro == estadoRegistroCorrecto ||
			linea.EstadoRegistro == estadoRegistroConErrores
		resp.Results = append(resp.Results, remision.RecordResult{
			NumeroFactura: linea.IDFactura.NumSerieFactura,
			RecordType:    recordType,
			Accepted:      accepted,
			Code:          linea.CodigoErrorRegistro,
			Message:       linea.DescripcionErrorRegistro,
		})
	}
	return resp, nil
}
