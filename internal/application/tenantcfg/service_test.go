package tenantcfg

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

type fakeTenantRepo struct {
	mu   sync.Mutex
	cfgs map[string]*entity.TenantConfig
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{cfgs: map[string]*entity.TenantConfig{}}
}

func (f *fakeTenantRepo) Create(_ context.Context, cfg *entity.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cfgs[cfg.TenantID]; ok {
		return domain.ErrDuplicate
	}
	clone := *cfg
	f.cfgs[cfg.TenantID] = &clone
	return nil
}

func (f *fakeTenantRepo) GetByTenantID(_ context.Context, tenantID string) (*entity.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.cfgs[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (f *fakeTenantRepo) ListActive(_ context.Context) ([]*entity.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.TenantConfig
	for _, cfg := range f.cfgs {
		if cfg.IsActive {
			clone := *cfg
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeTenantRepo) Update(_ context.Context, cfg *entity.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cfgs[cfg.TenantID]; !ok {
		return domain.ErrNotFound
	}
	clone := *cfg
	f.cfgs[cfg.TenantID] = &clone
	return nil
}

func (f *fakeTenantRepo) AdvanceChainHead(_ context.Context, _, _, _, _ string) (bool, error) {
	return false, fmt.Errorf("no usado en estas pruebas")
}

func (f *fakeTenantRepo) NextInvoiceSeq(_ context.Context, _ string) (int64, error) {
	return 0, fmt.Errorf("no usado en estas pruebas")
}

type fakeCertStore struct {
	mu     sync.Mutex
	stored map[string][]byte
	info   map[string]*CertificateInfo
	fail   error
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{stored: map[string][]byte{}, info: map[string]*CertificateInfo{}}
}

func (f *fakeCertStore) Store(tenantID string, p12 []byte, _ string) (*CertificateInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	info := &CertificateInfo{
		Subject:   "CN=Empresa Demo SL",
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
	}
	f.stored[tenantID] = p12
	f.info[tenantID] = info
	return info, nil
}

func (f *fakeCertStore) Inspect(tenantID string) (*CertificateInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.info[tenantID]
	if !ok {
		return nil, domain.ErrNoCertificate
	}
	return info, nil
}

func (f *fakeCertStore) Has(tenantID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stored[tenantID]
	return ok
}

func (f *fakeCertStore) Delete(tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[tenantID]; !ok {
		return domain.ErrNoCertificate
	}
	delete(f.stored, tenantID)
	delete(f.info, tenantID)
	return nil
}

type fakeTester struct {
	called bool
	env    string
	fail   error
}

func (f *fakeTester) TestConnection(_ context.Context, _, environment string) error {
	f.called = true
	f.env = environment
	return f.fail
}

type stubAuditRepo struct {
	mu     sync.Mutex
	events []*entity.AuditEvent
}

func (s *stubAuditRepo) Create(_ context.Context, e *entity.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *stubAuditRepo) List(_ context.Context, _ string, _ repository.AuditFilter) ([]*entity.AuditEvent, int, error) {
	return nil, 0, nil
}

type cfgFixture struct {
	svc     *Service
	tenants *fakeTenantRepo
	certs   *fakeCertStore
	tester  *fakeTester
	auditRe *stubAuditRepo
	ctx     context.Context
}

func newCfgFixture(t *testing.T) *cfgFixture {
	t.Helper()
	log := logger.New(logger.Config{Env: "development", Level: "error"})
	tenants := newFakeTenantRepo()
	certs := newFakeCertStore()
	tester := &fakeTester{}
	auditRepo := &stubAuditRepo{}
	return &cfgFixture{
		svc:     NewService(tenants, certs, tester, audit.NewService(auditRepo, log), log),
		tenants: tenants,
		certs:   certs,
		tester:  tester,
		auditRe: auditRepo,
		ctx:     context.Background(),
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestUpsertCreaConfiguracion(t *testing.T) {
	fx := newCfgFixture(t)

	cfg, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		NombreFiscal:     strPtr("Empresa Demo SL"),
		SerieFacturacion: strPtr("VF"),
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, "tenant-1", cfg.TenantID)
	assert.Equal(t, entity.AEATEnvironmentTesting, cfg.AEATEnvironment)
	assert.True(t, cfg.AutoRemision)
	assert.True(t, cfg.IsActive)
	assert.Equal(t, int64(1), cfg.NextInvoiceSeq)

	stored, err := fx.svc.Get(fx.ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "12345678Z", stored.NIF)
}

func TestUpsertActualizaSoloCamposEnviados(t *testing.T) {
	fx := newCfgFixture(t)
	_, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		NombreFiscal:     strPtr("Empresa Demo SL"),
		SerieFacturacion: strPtr("VF"),
	}, "admin")
	require.NoError(t, err)

	cfg, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		AutoRemision: boolPtr(false),
	}, "admin")
	require.NoError(t, err)

	assert.False(t, cfg.AutoRemision)
	assert.Equal(t, "12345678Z", cfg.NIF)
	assert.Equal(t, "VF", cfg.SerieFacturacion)
}

func TestUpsertValidaEntrada(t *testing.T) {
	fx := newCfgFixture(t)

	_, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("NIF-MALO"),
		SerieFacturacion: strPtr("VF"),
	}, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		SerieFacturacion: strPtr("VF"),
		AEATEnvironment:  strPtr("staging"),
	}, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUploadCertificate(t *testing.T) {
	fx := newCfgFixture(t)
	_, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		SerieFacturacion: strPtr("VF"),
	}, "admin")
	require.NoError(t, err)

	info, err := fx.svc.UploadCertificate(fx.ctx, "tenant-1", dto.UploadCertificateRequest{
		Certificate: base64.StdEncoding.EncodeToString([]byte("p12-bytes")),
		Password:    "secreto",
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "CN=Empresa Demo SL", info.Subject)

	cfg, err := fx.svc.Get(fx.ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "CN=Empresa Demo SL", cfg.CertificateSubject)
	require.NotNil(t, cfg.CertificateValidUntil)

	status, err := fx.svc.CertificateStatus(fx.ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, status.HasCertificate)
	assert.True(t, status.IsValid)
}

func TestUploadCertificateValidaEntrada(t *testing.T) {
	fx := newCfgFixture(t)

	_, err := fx.svc.UploadCertificate(fx.ctx, "tenant-1", dto.UploadCertificateRequest{}, "admin")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	_, err = fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		SerieFacturacion: strPtr("VF"),
	}, "admin")
	require.NoError(t, err)

	_, err = fx.svc.UploadCertificate(fx.ctx, "tenant-1", dto.UploadCertificateRequest{
		Certificate: "esto no es base64 !!!",
	}, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCertificateStatusSinCertificado(t *testing.T) {
	fx := newCfgFixture(t)

	status, err := fx.svc.CertificateStatus(fx.ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, status.HasCertificate)
}

func TestTestConnectionUsaEntornoConfigurado(t *testing.T) {
	fx := newCfgFixture(t)
	_, err := fx.svc.Upsert(fx.ctx, "tenant-1", dto.UpdateTenantConfigRequest{
		NIF:              strPtr("12345678Z"),
		SerieFacturacion: strPtr("VF"),
		AEATEnvironment:  strPtr(entity.AEATEnvironmentProduction),
	}, "admin")
	require.NoError(t, err)

	err = fx.svc.TestConnection(fx.ctx, "tenant-1")
	assert.ErrorIs(t, err, domain.ErrNoCertificate)
	assert.False(t, fx.tester.called)

	_, err = fx.svc.UploadCertificate(fx.ctx, "tenant-1", dto.UploadCertificateRequest{
		Certificate: base64.StdEncoding.EncodeToString([]byte("p12-bytes")),
	}, "admin")
	require.NoError(t, err)

	require.NoError(t, fx.svc.TestConnection(fx.ctx, "tenant-1"))
	assert.True(t, fx.tester.called)
	assert.Equal(t, entity.AEATEnvironmentProduction, fx.tester.env)
}
