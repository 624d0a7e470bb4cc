package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaraba/verifactu-api/internal/application/audit"
	"github.com/jaraba/verifactu-api/internal/application/dto"
	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/pkg/logger"
)

type ledgerFixture struct {
	svc      *Service
	records  *fakeRecordRepo
	tenants  *fakeTenantRepo
	auditLog *fakeAuditRepo
	qr       *fakeQR
}

func newLedgerFixture(t *testing.T, cfgs ...*entity.TenantConfig) *ledgerFixture {
	t.Helper()
	log := logger.New(logger.Config{Env: "development", Level: "error"})
	records := newFakeRecordRepo()
	tenants := newFakeTenantRepo(cfgs...)
	auditRepo := &fakeAuditRepo{}
	qr := &fakeQR{}
	tx := &fakeTxRunner{records: records, tenants: tenants}
	svc := NewService(records, tenants, tx, qr, audit.NewService(auditRepo, log), log)
	return &ledgerFixture{svc: svc, records: records, tenants: tenants, auditLog: auditRepo, qr: qr}
}

func altaRequest() dto.CreateRecordRequest {
	return dto.CreateRecordRequest{
		BaseImponible:   "1000.00",
		TipoImpositivo:  "21.00",
		CuotaTributaria: "210.00",
		ImporteTotal:    "1210.00",
	}
}

func TestCreateAltaSellaPrimerRegistro(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))

	record, err := fx.svc.CreateAlta(context.Background(), "t1", altaRequest(), "api:demo", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, entity.RecordTypeAlta, record.RecordType)
	assert.Equal(t, fmt.Sprintf("VF-%d-1", time.Now().UTC().Year()), record.NumeroFactura)
	assert.Equal(t, "F1", record.TipoFactura)
	assert.Empty(t, record.HuellaAnterior)
	assert.Len(t, record.Huella, 64)
	assert.Equal(t, entity.AEATStatusPending, record.AEATStatus)
	assert.NotEmpty(t, record.QRURL)

	cfg, err := fx.tenants.GetByTenantID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, record.Huella, cfg.LastChainHuella)
	assert.Equal(t, record.ID, cfg.LastChainRecordID)

	events := fx.auditLog.byType(entity.EventRecordCreate)
	require.Len(t, events, 1)
	assert.Equal(t, record.ID, events[0].RecordID)
	assert.NotEmpty(t, events[0].EventHash)
}

func TestCreateAltaEncadenaConElAnterior(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	first, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)
	second, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	assert.Equal(t, first.Huella, second.HuellaAnterior)
	assert.NotEqual(t, first.Huella, second.Huella)
	assert.Equal(t, fmt.Sprintf("VF-%d-2", time.Now().UTC().Year()), second.NumeroFactura)

	cfg, _ := fx.tenants.GetByTenantID(ctx, "t1")
	assert.Equal(t, second.Huella, cfg.LastChainHuella)
}

func TestCreateAltaValidaEntrada(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	req := altaRequest()
	req.ImporteTotal = "9999.00"
	_, err := fx.svc.CreateAlta(ctx, "t1", req, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req = altaRequest()
	req.TipoFactura = "Z9"
	_, err = fx.svc.CreateAlta(ctx, "t1", req, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req = altaRequest()
	req.BaseImponible = ""
	_, err = fx.svc.CreateAlta(ctx, "t1", req, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateAltaTenantDesconocido(t *testing.T) {
	fx := newLedgerFixture(t)
	_, err := fx.svc.CreateAlta(context.Background(), "nadie", altaRequest(), "", "")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestCreateAltaTenantDesactivado(t *testing.T) {
	cfg := testTenantConfig("t1")
	cfg.IsActive = false
	fx := newLedgerFixture(t, cfg)
	_, err := fx.svc.CreateAlta(context.Background(), "t1", altaRequest(), "", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateAltaReintentaTrasConflicto(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	fx.tenants.conflictsLeft = 1

	record, err := fx.svc.CreateAlta(context.Background(), "t1", altaRequest(), "", "")
	require.NoError(t, err)

	// El insert del intento perdedor se deshizo con la transacción.
	all, err := fx.records.ListByTenantOrdered(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, record.ID, all[0].ID)
}

func TestCreateAltaAgotaReintentos(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	fx.tenants.conflictsLeft = chainRetries

	_, err := fx.svc.CreateAlta(context.Background(), "t1", altaRequest(), "", "")
	assert.ErrorIs(t, err, domain.ErrChainConflict)

	all, _ := fx.records.ListByTenantOrdered(context.Background(), "t1")
	assert.Empty(t, all)
}

func TestCreateAnulacion(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	anulacion, err := fx.svc.CreateAnulacion(ctx, "t1", alta.ID, "api:demo", "")
	require.NoError(t, err)

	assert.Equal(t, entity.RecordTypeAnulacion, anulacion.RecordType)
	assert.Equal(t, alta.NumeroFactura, anulacion.NumeroFactura)
	assert.Equal(t, alta.Huella, anulacion.HuellaAnterior)
	assert.True(t, alta.ImporteTotal.Equal(anulacion.ImporteTotal))

	// El alta original no se toca.
	stored, err := fx.records.GetByID(ctx, alta.ID)
	require.NoError(t, err)
	assert.Equal(t, alta.Huella, stored.Huella)
	assert.Equal(t, entity.RecordTypeAlta, stored.RecordType)

	events := fx.auditLog.byType(entity.EventRecordCancel)
	require.Len(t, events, 1)
	assert.Equal(t, anulacion.ID, events[0].RecordID)
}

func TestCreateAnulacionRechazaObjetivosInvalidos(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)
	anulacion, err := fx.svc.CreateAnulacion(ctx, "t1", alta.ID, "", "")
	require.NoError(t, err)

	// Segunda anulación de la misma factura.
	_, err = fx.svc.CreateAnulacion(ctx, "t1", alta.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	// Anular una anulación.
	_, err = fx.svc.CreateAnulacion(ctx, "t1", anulacion.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	// Registro inexistente.
	_, err = fx.svc.CreateAnulacion(ctx, "t1", "no-existe", "", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateAnulacionNoCruzaTenants(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"), testTenantConfig("t2"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	_, err = fx.svc.CreateAnulacion(ctx, "t2", alta.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRectificativa(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	req := dto.CreateRecordRequest{
		BaseImponible:   "800.00",
		TipoImpositivo:  "21.00",
		CuotaTributaria: "168.00",
		ImporteTotal:    "968.00",
	}
	rect, err := fx.svc.CreateRectificativa(ctx, "t1", alta.ID, req, "", "")
	require.NoError(t, err)

	assert.Equal(t, "R1", rect.TipoFactura)
	assert.Equal(t, entity.RecordTypeAlta, rect.RecordType)
	assert.Equal(t, fmt.Sprintf("VF-%d-2", time.Now().UTC().Year()), rect.NumeroFactura)
	assert.Equal(t, alta.Huella, rect.HuellaAnterior)
}

func TestMarkSubmissionResultProtegeAceptados(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	require.NoError(t, fx.svc.MarkSubmissionResult(ctx, "t1", alta.ID, entity.AEATStatusAccepted, "", "aeat"))

	err = fx.svc.MarkSubmissionResult(ctx, "t1", alta.ID, entity.AEATStatusRejected, "4102", "aeat")
	assert.ErrorIs(t, err, domain.ErrImmutableField)

	stored, _ := fx.records.GetByID(ctx, alta.ID)
	assert.Equal(t, entity.AEATStatusAccepted, stored.AEATStatus)

	violations := fx.auditLog.byType(entity.EventImmutable)
	require.Len(t, violations, 1)
	assert.Equal(t, entity.SeverityCritical, violations[0].Severity)
}

func TestMarkSubmissionResultValidaEstado(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	err = fx.svc.MarkSubmissionResult(ctx, "t1", alta.ID, "lo-que-sea", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAttachQRNoBloqueaElSellado(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	fx.qr.fail = true

	record, err := fx.svc.CreateAlta(context.Background(), "t1", altaRequest(), "", "")
	require.NoError(t, err)
	assert.Empty(t, record.QRURL)

	// Regeneración posterior, con el render ya disponible.
	fx.qr.fail = false
	regen, err := fx.svc.RegenerateQR(context.Background(), "t1", record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, regen.QRURL)
	assert.NotEmpty(t, regen.QRImage)
}

func TestGetChainHead(t *testing.T) {
	fx := newLedgerFixture(t, testTenantConfig("t1"))
	ctx := context.Background()

	huella, recordID, err := fx.svc.GetChainHead(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, huella)
	assert.Empty(t, recordID)

	alta, err := fx.svc.CreateAlta(ctx, "t1", altaRequest(), "", "")
	require.NoError(t, err)

	huella, recordID, err = fx.svc.GetChainHead(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, alta.Huella, huella)
	assert.Equal(t, alta.ID, recordID)
}
