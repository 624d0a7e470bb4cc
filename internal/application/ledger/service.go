// Package ledger implementa el libro de registros de facturación: sellado de
// altas y anulaciones en la cadena de huellas del tenant y verificación de su
// integridad.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/internal/domain/verifactu"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// chainRetries reintentos automáticos ante ErrChainConflict. Con el mutex por
// tenant en proceso el conflicto solo aparece con varias réplicas compitiendo
// por el mismo tenant.
const chainRetries = 3

// Tipos de factura admitidos en el alta.
var tiposFacturaValidos = map[string]bool{
	"F1": true, // Factura completa
	"F2": true, // Factura simplificada
	"R1": true, // Rectificativa
}

// Service sella registros de facturación en la cadena de huellas del tenant.
type Service struct {
	records repository.RecordRepository
	tenants repository.TenantConfigRepository
	tx      ChainTxRunner
	qr      QRGenerator
	audit   *audit.Service
	log     *logger.Logger

	// Un mutex por tenant serializa el sellado dentro del proceso. El CAS de
	// AdvanceChainHead cubre la carrera entre réplicas.
	tenantLocks sync.Map
}

// NewService construye el servicio del libro de registros.
func NewService(
	records repository.RecordRepository,
	tenants repository.TenantConfigRepository,
	tx ChainTxRunner,
	qr QRGenerator,
	auditSvc *audit.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		records: records,
		tenants: tenants,
		tx:      tx,
		qr:      qr,
		audit:   auditSvc,
		log:     log,
	}
}

// CreateAlta sella un registro de alta: asigna el siguiente número de la
// serie, calcula la huella enlazada con la cabeza del tenant y persiste
// registro y avance de cabeza en una sola transacción.
func (s *Service) CreateAlta(ctx context.Context, tenantID string, req dto.CreateRecordRequest, actor, sourceAddr string) (*entity.InvoiceRecord, error) {
	cfg, err := s.activeConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	record, err := s.buildAlta(cfg, req)
	if err != nil {
		return nil, err
	}

	if err := s.seal(ctx, cfg.TenantID, record, true); err != nil {
		return nil, err
	}

	s.attachQR(ctx, record)
	s.audit.Log(ctx, audit.Entry{
		TenantID:   tenantID,
		EventType:  entity.EventRecordCreate,
		Severity:   entity.SeverityInfo,
		RecordID:   record.ID,
		Actor:      actor,
		SourceAddr: sourceAddr,
		Detail: map[string]any{
			"numero_factura": record.NumeroFactura,
			"tipo_factura":   record.TipoFactura,
			"importe_total":  record.ImporteTotal.StringFixed(2),
			"huella":         record.Huella,
		},
	})
	return record, nil
}

// CreateAnulacion sella un registro de anulación para una factura ya dada de
// alta. El registro de anulación reutiliza la identidad fiscal de la factura
// original y entra en la cadena como un eslabón nuevo: el alta nunca se toca.
func (s *Service) CreateAnulacion(ctx context.Context, tenantID, recordID, actor, sourceAddr string) (*entity.InvoiceRecord, error) {
	cfg, err := s.activeConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	original, err := s.ownedRecord(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if !original.IsAlta() {
		return nil, fmt.Errorf("%w: el registro %s no es un alta", domain.ErrInvalidTarget, recordID)
	}
	cancelled, err := s.records.HasAnulacion(ctx, tenantID, original.NumeroFactura)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return nil, fmt.Errorf("%w: la factura %s ya está anulada", domain.ErrInvalidTarget, original.NumeroFactura)
	}

	record := &entity.InvoiceRecord{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		RecordType:      entity.RecordTypeAnulacion,
		NIFEmisor:       original.NIFEmisor,
		NombreEmisor:    original.NombreEmisor,
		NumeroFactura:   original.NumeroFactura,
		FechaExpedicion: original.FechaExpedicion,
		TipoFactura:     original.TipoFactura,
		ClaveRegimen:    original.ClaveRegimen,
		BaseImponible:   original.BaseImponible,
		TipoImpositivo:  original.TipoImpositivo,
		CuotaTributaria: original.CuotaTributaria,
		ImporteTotal:    original.ImporteTotal,
		AEATStatus:      entity.AEATStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.seal(ctx, cfg.TenantID, record, false); err != nil {
		return nil, err
	}

	s.attachQR(ctx, record)
	s.audit.Log(ctx, audit.Entry{
		TenantID:   tenantID,
		EventType:  entity.EventRecordCancel,
		Severity:   entity.SeverityNotice,
		RecordID:   record.ID,
		Actor:      actor,
		SourceAddr: sourceAddr,
		Detail: map[string]any{
			"numero_factura": record.NumeroFactura,
			"anula_registro": original.ID,
			"huella":         record.Huella,
		},
	})
	return record, nil
}

// CreateRectificativa sella una factura rectificativa (R1) sobre una factura
// ya dada de alta: un alta nueva, con número propio de la serie y los montos
// corregidos.
func (s *Service) CreateRectificativa(ctx context.Context, tenantID, recordID string, req dto.CreateRecordRequest, actor, sourceAddr string) (*entity.InvoiceRecord, error) {
	cfg, err := s.activeConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	original, err := s.ownedRecord(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if !original.IsAlta() {
		return nil, fmt.Errorf("%w: solo se rectifican registros de alta", domain.ErrInvalidTarget)
	}

	req.TipoFactura = "R1"
	record, err := s.buildAlta(cfg, req)
	if err != nil {
		return nil, err
	}

	if err := s.seal(ctx, cfg.TenantID, record, true); err != nil {
		return nil, err
	}

	s.attachQR(ctx, record)
	s.audit.Log(ctx, audit.Entry{
		TenantID:   tenantID,
		EventType:  entity.EventRecordCreate,
		Severity:   entity.SeverityInfo,
		RecordID:   record.ID,
		Actor:      actor,
		SourceAddr: sourceAddr,
		Detail: map[string]any{
			"numero_factura": record.NumeroFactura,
			"tipo_factura":   record.TipoFactura,
			"rectifica":      original.NumeroFactura,
			"huella":         record.Huella,
		},
	})
	return record, nil
}

// MarkSubmissionResult actualiza el grupo de estado AEAT de un registro. Es la
// única mutación permitida tras el sellado; cualquier intento de degradar un
// registro ya aceptado se rechaza y queda en el log de auditoría.
func (s *Service) MarkSubmissionResult(ctx context.Context, tenantID, recordID, status, responseCode, actor string) error {
	switch status {
	case entity.AEATStatusAccepted, entity.AEATStatusRejected, entity.AEATStatusError:
	default:
		return fmt.Errorf("%w: estado AEAT %q no reconocido", domain.ErrInvalidInput, status)
	}

	record, err := s.ownedRecord(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	if record.AEATStatus == entity.AEATStatusAccepted && status != entity.AEATStatusAccepted {
		s.audit.Log(ctx, audit.Entry{
			TenantID:  tenantID,
			EventType: entity.EventImmutable,
			Severity:  entity.SeverityCritical,
			RecordID:  recordID,
			Actor:     actor,
			Detail: map[string]any{
				"estado_actual":    record.AEATStatus,
				"estado_intentado": status,
			},
		})
		return fmt.Errorf("%w: el registro %s ya fue aceptado por la AEAT", domain.ErrImmutableField, recordID)
	}

	return s.records.UpdateSubmissionResult(ctx, recordID, status, responseCode)
}

// Get devuelve un registro del tenant.
func (s *Service) Get(ctx context.Context, tenantID, recordID string) (*entity.InvoiceRecord, error) {
	return s.ownedRecord(ctx, tenantID, recordID)
}

// List devuelve los registros del tenant con filtros y paginación.
func (s *Service) List(ctx context.Context, tenantID string, filter repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.records.List(ctx, tenantID, filter)
}

// GetChainHead devuelve la cabeza de la cadena del tenant.
func (s *Service) GetChainHead(ctx context.Context, tenantID string) (huella, recordID string, err error) {
	cfg, err := s.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", domain.ErrTenantNotFound
		}
		return "", "", err
	}
	return cfg.LastChainHuella, cfg.LastChainRecordID, nil
}

// RegenerateQR vuelve a derivar la URL de cotejo y la imagen QR del registro.
// El QR es función pura del contenido sellado, así que regenerarlo nunca
// cambia la cadena.
func (s *Service) RegenerateQR(ctx context.Context, tenantID, recordID string) (*entity.InvoiceRecord, error) {
	record, err := s.ownedRecord(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	url, img, err := s.qr.Generate(record)
	if err != nil {
		return nil, err
	}
	if err := s.records.UpdateQR(ctx, record.ID, url, img); err != nil {
		return nil, err
	}
	record.QRURL = url
	record.QRImage = img
	return record, nil
}

// activeConfig carga la configuración del tenant y valida que esté operativa.
func (s *Service) activeConfig(ctx context.Context, tenantID string) (*entity.TenantConfig, error) {
	cfg, err := s.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: el tenant %s está desactivado", domain.ErrForbidden, tenantID)
	}
	if !verifactu.IsValidNIF(cfg.NIF) {
		return nil, fmt.Errorf("%w: el NIF configurado %q no es válido", domain.ErrInvalidInput, cfg.NIF)
	}
	return cfg, nil
}

// ownedRecord carga un registro comprobando que pertenece al tenant. Un
// registro ajeno se reporta como no encontrado para no filtrar su existencia.
func (s *Service) ownedRecord(ctx context.Context, tenantID, recordID string) (*entity.InvoiceRecord, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// buildAlta valida la petición y construye el registro de alta sin sellar
// (sin número, huella ni seq: se asignan dentro de la transacción).
func (s *Service) buildAlta(cfg *entity.TenantConfig, req dto.CreateRecordRequest) (*entity.InvoiceRecord, error) {
	tipo := strings.ToUpper(strings.TrimSpace(req.TipoFactura))
	if tipo == "" {
		tipo = "F1"
	}
	if !tiposFacturaValidos[tipo] {
		return nil, fmt.Errorf("%w: tipo de factura %q no admitido", domain.ErrInvalidInput, tipo)
	}

	fecha := time.Now().UTC()
	if req.FechaExpedicion != "" {
		parsed, err := time.Parse("2006-01-02", req.FechaExpedicion)
		if err != nil {
			return nil, fmt.Errorf("%w: fecha_expedicion debe ser YYYY-MM-DD", domain.ErrInvalidInput)
		}
		fecha = parsed
	}

	base, err := parseAmount("base_imponible", req.BaseImponible)
	if err != nil {
		return nil, err
	}
	tipoImp, err := parseAmount("tipo_impositivo", req.TipoImpositivo)
	if err != nil {
		return nil, err
	}
	cuota, err := parseAmount("cuota_tributaria", req.CuotaTributaria)
	if err != nil {
		return nil, err
	}
	importe, err := parseAmount("importe_total", req.ImporteTotal)
	if err != nil {
		return nil, err
	}
	if !base.Add(cuota).Round(2).Equal(importe.Round(2)) {
		return nil, fmt.Errorf("%w: importe_total debe ser base_imponible + cuota_tributaria", domain.ErrInvalidInput)
	}

	return &entity.InvoiceRecord{
		ID:              uuid.New().String(),
		TenantID:        cfg.TenantID,
		RecordType:      entity.RecordTypeAlta,
		NIFEmisor:       strings.ToUpper(strings.TrimSpace(cfg.NIF)),
		NombreEmisor:    cfg.NombreFiscal,
		FechaExpedicion: fecha,
		TipoFactura:     tipo,
		ClaveRegimen:    "01",
		BaseImponible:   base,
		TipoImpositivo:  tipoImp,
		CuotaTributaria: cuota,
		ImporteTotal:    importe,
		AEATStatus:      entity.AEATStatusPending,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// seal sella el registro: dentro de una transacción lee la cabeza de cadena
// fresca, asigna número de serie si procede, calcula la huella, inserta el
// registro y avanza la cabeza con CAS. Si el CAS pierde la carrera, la
// transacción entera se deshace y se reintenta con la cabeza nueva.
func (s *Service) seal(ctx context.Context, tenantID string, record *entity.InvoiceRecord, assignNumero bool) error {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < chainRetries; attempt++ {
		err := s.tx.RunChain(ctx, func(tx ChainTx) error {
			fresh, err := tx.TenantConfigs().GetByTenantID(ctx, tenantID)
			if err != nil {
				return err
			}

			if assignNumero {
				n, err := tx.TenantConfigs().NextInvoiceSeq(ctx, tenantID)
				if err != nil {
					return err
				}
				record.NumeroFactura = fmt.Sprintf("%s-%d-%d", fresh.SerieFacturacion, record.FechaExpedicion.Year(), n)
			}

			record.HuellaAnterior = fresh.LastChainHuella
			huella, err := recomputeHuella(record)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			record.Huella = huella

			if err := tx.Records().Create(ctx, record); err != nil {
				return err
			}

			ok, err := tx.TenantConfigs().AdvanceChainHead(ctx, tenantID, record.HuellaAnterior, huella, record.ID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrChainConflict
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrChainConflict) {
			return err
		}
		lastErr = err
		s.log.Warn().
			Str("tenant_id", tenantID).
			Int("attempt", attempt+1).
			Msg("conflicto de cadena, reintentando sellado")
	}
	return lastErr
}

// attachQR deriva el QR tras el commit. Un fallo aquí no invalida el sellado:
// el QR puede regenerarse después porque es derivado determinista.
func (s *Service) attachQR(ctx context.Context, record *entity.InvoiceRecord) {
	url, img, err := s.qr.Generate(record)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("record_id", record.ID).
			Msg("no se pudo generar el QR del registro")
		return
	}
	if err := s.records.UpdateQR(ctx, record.ID, url, img); err != nil {
		s.log.Warn().
			Err(err).
			Str("record_id", record.ID).
			Msg("no se pudo persistir el QR del registro")
		return
	}
	record.QRURL = url
	record.QRImage = img
}

func (s *Service) lockFor(tenantID string) *sync.Mutex {
	v, _ := s.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s es obligatorio", domain.ErrInvalidInput, field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s debe ser un monto decimal", domain.ErrInvalidInput, field)
	}
	return d, nil
}
