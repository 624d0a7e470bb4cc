package ledger

import (
	"context"
	"errors"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/internal/domain/verifactu"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// Motivos de ruptura de cadena.
const (
	BreakReasonTampered  = "huella_alterada"  // La huella almacenada no se recomputa del contenido
	BreakReasonLinkage   = "enlace_roto"      // HuellaAnterior no coincide con la huella del predecesor
	BreakReasonHeadDrift = "cabeza_desfasada" // La cabeza del tenant no apunta al último registro
)

// VerificationResult es el resultado de recorrer la cadena completa.
type VerificationResult struct {
	IsValid         bool
	TotalRecords    int
	ValidRecords    int
	BreakAtRecordID string
	BreakReason     string
}

// Verifier recorre la cadena de un tenant recomputando cada huella desde el
// contenido almacenado y comprobando el enlace con el predecesor.
type Verifier struct {
	records repository.RecordRepository
	tenants repository.TenantConfigRepository
	audit   *audit.Service
	log     *logger.Logger
}

// NewVerifier construye el verificador de cadena.
func NewVerifier(
	records repository.RecordRepository,
	tenants repository.TenantConfigRepository,
	auditSvc *audit.Service,
	log *logger.Logger,
) *Verifier {
	return &Verifier{records: records, tenants: tenants, audit: auditSvc, log: log}
}

// headReadAttempts es el número de lecturas del par cabeza/listado antes de
// renunciar a la comprobación de desfase en un tenant con escrituras activas.
const headReadAttempts = 3

// VerifyChain verifica la cadena completa del tenant en orden de creación.
//
// La ruptura se atribuye al primer registro inconsistente: el registro cuya
// huella almacenada no se recomputa de su propio contenido, o cuyo
// HuellaAnterior no enlaza con la huella del registro anterior. La
// verificación es de solo lectura y nunca corrige la cadena.
//
// La cabeza se lee antes y después del listado: si coincide, ningún sellado
// se intercaló y el par es coherente. Si tras varios intentos la cabeza sigue
// moviéndose, se recorre la cadena igualmente pero la comprobación de desfase
// se aplaza; un sellado concurrente nunca se señala como ruptura.
func (v *Verifier) VerifyChain(ctx context.Context, tenantID string) (*VerificationResult, error) {
	var (
		records    []*entity.InvoiceRecord
		head       string
		headStable bool
	)
	for attempt := 0; attempt < headReadAttempts; attempt++ {
		cfg, err := v.tenants.GetByTenantID(ctx, tenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrTenantNotFound
			}
			return nil, err
		}
		records, err = v.records.ListByTenantOrdered(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		after, err := v.tenants.GetByTenantID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if after.LastChainHuella == cfg.LastChainHuella {
			head = cfg.LastChainHuella
			headStable = true
			break
		}
	}
	if !headStable {
		v.log.Debug().
			Str("tenant_id", tenantID).
			Msg("cabeza de cadena en movimiento, comprobación de desfase aplazada")
	}

	result := &VerificationResult{IsValid: true, TotalRecords: len(records)}
	prev := ""
	for _, r := range records {
		recomputed, err := recomputeHuella(r)
		if err != nil || recomputed != r.Huella {
			v.breakAt(result, r, BreakReasonTampered)
			break
		}
		if r.HuellaAnterior != prev {
			v.breakAt(result, r, BreakReasonLinkage)
			break
		}
		result.ValidRecords++
		prev = r.Huella
	}

	if headStable && result.IsValid && len(records) > 0 && head != prev {
		v.breakAt(result, records[len(records)-1], BreakReasonHeadDrift)
	}

	v.report(ctx, tenantID, result)
	return result, nil
}

// recomputeHuella vuelve a derivar la huella desde el contenido almacenado.
func recomputeHuella(r *entity.InvoiceRecord) (string, error) {
	return verifactu.ComputeHuella(&verifactu.HuellaParams{
		NIFEmisor:       r.NIFEmisor,
		NumeroFactura:   r.NumeroFactura,
		FechaExpedicion: r.FechaExpedicion,
		TipoFactura:     r.TipoFactura,
		CuotaTributaria: r.CuotaTributaria,
		ImporteTotal:    r.ImporteTotal,
		RecordType:      r.RecordType,
		HuellaAnterior:  r.HuellaAnterior,
	})
}

func (v *Verifier) breakAt(result *VerificationResult, r *entity.InvoiceRecord, reason string) {
	result.IsValid = false
	result.BreakAtRecordID = r.ID
	result.BreakReason = reason
}

func (v *Verifier) report(ctx context.Context, tenantID string, result *VerificationResult) {
	detail := map[string]any{
		"total_records": result.TotalRecords,
		"valid_records": result.ValidRecords,
		"is_valid":      result.IsValid,
	}
	v.audit.Log(ctx, audit.Entry{
		TenantID:  tenantID,
		EventType: entity.EventChainVerify,
		Severity:  entity.SeverityInfo,
		Detail:    detail,
	})
	if result.IsValid {
		return
	}

	v.log.Error().
		Str("tenant_id", tenantID).
		Str("record_id", result.BreakAtRecordID).
		Str("reason", result.BreakReason).
		Msg("ruptura de cadena detectada")
	v.audit.Log(ctx, audit.Entry{
		TenantID:  tenantID,
		EventType: entity.EventChainBreak,
		Severity:  entity.SeverityCritical,
		RecordID:  result.BreakAtRecordID,
		Detail: map[string]any{
			"reason":        result.BreakReason,
			"valid_records": result.ValidRecords,
		},
	})
}
