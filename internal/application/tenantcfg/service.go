// Package tenantcfg gestiona la configuración VeriFactu de cada tenant:
// identidad fiscal, serie, entorno AEAT y certificado de remisión.
package tenantcfg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/internal/domain/verifactu"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

// Service expone la configuración del tenant y su certificado.
type Service struct {
	tenants repository.TenantConfigRepository
	certs   CertificateStore
	tester  ConnectionTester
	audit   *audit.Service
	log     *logger.Logger
}

// NewService construye el servicio.
func NewService(
	tenants repository.TenantConfigRepository,
	certs CertificateStore,
	tester ConnectionTester,
	auditSvc *audit.Service,
	log *logger.Logger,
) *Service {
	return &Service{tenants: tenants, certs: certs, tester: tester, audit: auditSvc, log: log}
}

// Get devuelve la configuración del tenant.
func (s *Service) Get(ctx context.Context, tenantID string) (*entity.TenantConfig, error) {
	cfg, err := s.tenants.GetByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// Upsert aplica los campos enviados sobre la configuración del tenant,
// creándola si aún no existe. La cabeza de cadena nunca se toca por aquí.
func (s *Service) Upsert(ctx context.Context, tenantID string, req dto.UpdateTenantConfigRequest, actor string) (*entity.TenantConfig, error) {
	cfg, err := s.tenants.GetByTenantID(ctx, tenantID)
	created := false
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		cfg = defaultConfig(tenantID)
		created = true
	}

	if err := applyUpdate(cfg, req); err != nil {
		return nil, err
	}
	if cfg.NIF == "" || !verifactu.IsValidNIF(cfg.NIF) {
		return nil, fmt.Errorf("%w: NIF inválido", domain.ErrInvalidInput)
	}
	if cfg.SerieFacturacion == "" {
		return nil, fmt.Errorf("%w: serie de facturación requerida", domain.ErrInvalidInput)
	}

	cfg.UpdatedAt = time.Now().UTC()
	if created {
		err = s.tenants.Create(ctx, cfg)
	} else {
		err = s.tenants.Update(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Entry{
		TenantID:  tenantID,
		EventType: entity.EventConfigUpdate,
		Detail: map[string]any{
			"created":          created,
			"aeat_environment": cfg.AEATEnvironment,
			"auto_remision":    cfg.AutoRemision,
			"is_active":        cfg.IsActive,
		},
		Actor: actor,
	})
	return cfg, nil
}

// UploadCertificate valida y guarda el certificado .p12 del tenant y refleja
// subject y caducidad en su configuración.
func (s *Service) UploadCertificate(ctx context.Context, tenantID string, req dto.UploadCertificateRequest, actor string) (*CertificateInfo, error) {
	cfg, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p12, err := base64.StdEncoding.DecodeString(req.Certificate)
	if err != nil {
		return nil, fmt.Errorf("%w: el certificado debe llegar en Base64", domain.ErrInvalidInput)
	}
	if len(p12) == 0 {
		return nil, fmt.Errorf("%w: certificado vacío", domain.ErrInvalidInput)
	}

	info, err := s.certs.Store(tenantID, p12, req.Password)
	if err != nil {
		return nil, err
	}

	cfg.CertificateSubject = info.Subject
	notAfter := info.NotAfter
	cfg.CertificateValidUntil = &notAfter
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.tenants.Update(ctx, cfg); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Entry{
		TenantID:  tenantID,
		EventType: entity.EventCertUpload,
		Detail: map[string]any{
			"subject":   info.Subject,
			"not_after": info.NotAfter.Format(time.RFC3339),
		},
		Actor: actor,
	})
	return info, nil
}

// CertificateStatus resume el estado del certificado del tenant sin exponer
// su contenido.
func (s *Service) CertificateStatus(_ context.Context, tenantID string) (*dto.CertificateStatusResponse, error) {
	if !s.certs.Has(tenantID) {
		return &dto.CertificateStatusResponse{HasCertificate: false}, nil
	}
	info, err := s.certs.Inspect(tenantID)
	if err != nil {
		return &dto.CertificateStatusResponse{
			HasCertificate: true,
			ErrorMessage:   err.Error(),
		}, nil
	}
	notAfter := info.NotAfter
	return &dto.CertificateStatusResponse{
		HasCertificate: true,
		IsValid:        info.IsValid(),
		Subject:        info.Subject,
		ExpiresAt:      &notAfter,
	}, nil
}

// TestConnection comprueba el canal con la AEAT usando el certificado y el
// entorno configurados del tenant.
func (s *Service) TestConnection(ctx context.Context, tenantID string) error {
	cfg, err := s.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if !s.certs.Has(tenantID) {
		return domain.ErrNoCertificate
	}
	return s.tester.TestConnection(ctx, tenantID, cfg.AEATEnvironment)
}

func defaultConfig(tenantID string) *entity.TenantConfig {
	now := time.Now().UTC()
	return &entity.TenantConfig{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		AEATEnvironment: entity.AEATEnvironmentTesting,
		AutoRemision:    true,
		IsActive:        true,
		NextInvoiceSeq:  1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func applyUpdate(cfg *entity.TenantConfig, req dto.UpdateTenantConfigRequest) error {
	if req.NIF != nil {
		cfg.NIF = *req.NIF
	}
	if req.NombreFiscal != nil {
		cfg.NombreFiscal = *req.NombreFiscal
	}
	if req.SerieFacturacion != nil {
		cfg.SerieFacturacion = *req.SerieFacturacion
	}
	if req.AEATEnvironment != nil {
		env := *req.AEATEnvironment
		if env != entity.AEATEnvironmentTesting && env != entity.AEATEnvironmentProduction {
			return fmt.Errorf("%w: entorno AEAT desconocido %q", domain.ErrInvalidInput, env)
		}
		cfg.AEATEnvironment = env
	}
	if req.AutoRemision != nil {
		cfg.AutoRemision = *req.AutoRemision
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	return nil
}
