// Construcción del sobre SOAP RegFactuSistemaFacturacion para la remisión
// VERI*FACTU. Los nombres y el anidamiento de los elementos están congelados
// por el esquema de la AEAT: cualquier cambio rompe la validación del envío.

package aeat

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/config"
)

// Espacios de nombres del envío VERI*FACTU.
const (
	NamespaceSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceSum     = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroLR.xsd"
	NamespaceSum1    = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroInformacion.xsd"
)

// Constantes del esquema.
const (
	idVersion       = "1.0"
	impuestoIVA     = "01" // IVA
	calificacionS1  = "S1" // Operación sujeta y no exenta
	tipoHuellaSHA   = "01" // SHA-256
	fechaFormatoXML = "02-01-2006"
	fechaHoraHuso   = "2006-01-02T15:04:05-07:00"
)

// XMLBuilder construye el sobre SOAP de remisión con los registros de un lote.
type XMLBuilder struct {
	cfg config.AEATConfig
}

// NewXMLBuilder crea el constructor de sobres.
func NewXMLBuilder(cfg config.AEATConfig) *XMLBuilder {
	return &XMLBuilder{cfg: cfg}
}

var _ remision.EnvelopeBuilder = (*XMLBuilder)(nil)

// BuildEnvelope genera el XML del envío completo. Todos los registros del lote
// pertenecen al mismo tenant; la cabecera lleva su identidad fiscal.
func (b *XMLBuilder) BuildEnvelope(cfg *entity.TenantConfig, records []*entity.InvoiceRecord) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("aeat: configuración de tenant requerida")
	}
	if len(records) == 0 {
		return "", fmt.Errorf("aeat: el lote no tiene registros")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", NamespaceSoapEnv)
	env.CreateAttr("xmlns:sum", NamespaceSum)
	env.CreateAttr("xmlns:sum1", NamespaceSum1)

	env.CreateElement("soapenv:Header")
	body := env.CreateElement("soapenv:Body")

	regFactu := body.CreateElement("sum:RegFactuSistemaFacturacion")

	cabecera := regFactu.CreateElement("sum:Cabecera")
	obligado := cabecera.CreateElement("sum1:ObligadoEmision")
	obligado.CreateElement("sum1:NombreRazon").SetText(cfg.NombreFiscal)
	obligado.CreateElement("sum1:NIF").SetText(cfg.NIF)

	for _, r := range records {
		registro := regFactu.CreateElement("sum:RegistroFactura")
		switch r.RecordType {
		case entity.RecordTypeAlta:
			b.writeRegistroAlta(registro, cfg, r)
		case entity.RecordTypeAnulacion:
			b.writeRegistroAnulacion(registro, cfg, r)
		default:
			return "", fmt.Errorf("aeat: tipo de registro desconocido %q", r.RecordType)
		}
	}

	doc.Indent(2)
	return doc.WriteToString()
}

func (b *XMLBuilder) writeRegistroAlta(parent *etree.Element, cfg *entity.TenantConfig, r *entity.InvoiceRecord) {
	alta := parent.CreateElement("sum1:RegistroAlta")
	alta.CreateElement("sum1:IDVersion").SetText(idVersion)

	id := alta.CreateElement("sum1:IDFactura")
	id.CreateElement("sum1:IDEmisorFactura").SetText(r.NIFEmisor)
	id.CreateElement("sum1:NumSerieFactura").SetText(r.NumeroFactura)
	id.CreateElement("sum1:FechaExpedicionFactura").SetText(r.FechaExpedicion.Format(fechaFormatoXML))

	alta.CreateElement("sum1:NombreRazonEmisor").SetText(r.NombreEmisor)
	alta.CreateElement("sum1:TipoFactura").SetText(r.TipoFactura)

	desglose := alta.CreateElement("sum1:Desglose")
	detalle := desglose.CreateElement("sum1:DetalleDesglose")
	detalle.CreateElement("sum1:Impuesto").SetText(impuestoIVA)
	detalle.CreateElement("sum1:ClaveRegimen").SetText(r.ClaveRegimen)
	detalle.CreateElement("sum1:CalificacionOperacion").SetText(calificacionS1)
	detalle.CreateElement("sum1:TipoImpositivo").SetText(formatAmount(r.TipoImpositivo))
	detalle.CreateElement("sum1:BaseImponibleOimporteNoSujeto").SetText(formatAmount(r.BaseImponible))
	detalle.CreateElement("sum1:CuotaRepercutida").SetText(formatAmount(r.CuotaTributaria))

	alta.CreateElement("sum1:CuotaTotal").SetText(formatAmount(r.CuotaTributaria))
	alta.CreateElement("sum1:ImporteTotal").SetText(formatAmount(r.ImporteTotal))

	b.writeEncadenamiento(alta, r)
	b.writeSistemaInformatico(alta, cfg)

	alta.CreateElement("sum1:FechaHoraHusoGenRegistro").SetText(r.CreatedAt.Format(fechaHoraHuso))
	alta.CreateElement("sum1:TipoHuella").SetText(tipoHuellaSHA)
	alta.CreateElement("sum1:Huella").SetText(r.Huella)
}

func (b *XMLBuilder) writeRegistroAnulacion(parent *etree.Element, cfg *entity.TenantConfig, r *entity.InvoiceRecord) {
	anul := parent.CreateElement("sum1:RegistroAnulacion")
	anul.CreateElement("sum1:IDVersion").SetText(idVersion)

	id := anul.CreateElement("sum1:IDFactura")
	id.CreateElement("sum1:IDEmisorFacturaAnulada").SetText(r.NIFEmisor)
	id.CreateElement("sum1:NumSerieFacturaAnulada").SetText(r.NumeroFactura)
	id.CreateElement("sum1:FechaExpedicionFacturaAnulada").SetText(r.FechaExpedicion.Format(fechaFormatoXML))

	b.writeEncadenamiento(anul, r)
	b.writeSistemaInformatico(anul, cfg)

	anul.CreateElement("sum1:FechaHoraHusoGenRegistro").SetText(r.CreatedAt.Format(fechaHoraHuso))
	anul.CreateElement("sum1:TipoHuella").SetText(tipoHuellaSHA)
	anul.CreateElement("sum1:Huella").SetText(r.Huella)
}

// writeEncadenamiento emite el eslabón de la cadena: el primer registro del
// tenant declara PrimerRegistro; los demás referencian la huella anterior.
func (b *XMLBuilder) writeEncadenamiento(parent *etree.Element, r *entity.InvoiceRecord) {
	enc := parent.CreateElement("sum1:Encadenamiento")
	if r.IsPrimerRegistro() {
		enc.CreateElement("sum1:PrimerRegistro").SetText("S")
		return
	}
	anterior := enc.CreateElement("sum1:RegistroAnterior")
	anterior.CreateElement("sum1:Huella").SetText(r.HuellaAnterior)
}

func (b *XMLBuilder) writeSistemaInformatico(parent *etree.Element, cfg *entity.TenantConfig) {
	sis := parent.CreateElement("sum1:SistemaInformatico")
	sis.CreateElement("sum1:NombreRazon").SetText(b.cfg.SystemName)
	sis.CreateElement("sum1:NIF").SetText(cfg.NIF)
	sis.CreateElement("sum1:NombreSistemaInformatico").SetText(b.cfg.SystemName)
	sis.CreateElement("sum1:IdSistemaInformatico").SetText(b.cfg.SystemID)
	sis.CreateElement("sum1:Version").SetText(b.cfg.SystemVersion)
	sis.CreateElement("sum1:NumeroInstalacion").SetText(b.cfg.InstallNumber)
}

// formatAmount formatea montos con dos decimales y punto decimal, como exige
// el esquema.
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
