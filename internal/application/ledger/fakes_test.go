package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

// Fakes en memoria para los puertos de persistencia del sellado.

type fakeRecordRepo struct {
	mu      sync.Mutex
	records []*entity.InvoiceRecord
	nextSeq int64
}

func newFakeRecordRepo() *fakeRecordRepo { return &fakeRecordRepo{} }

func (f *fakeRecordRepo) Create(_ context.Context, r *entity.InvoiceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	r.Seq = f.nextSeq
	clone := *r
	f.records = append(f.records, &clone)
	return nil
}

func (f *fakeRecordRepo) GetByID(_ context.Context, id string) (*entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			clone := *r
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) HasAnulacion(_ context.Context, tenantID, numeroFactura string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.TenantID == tenantID && r.NumeroFactura == numeroFactura && r.RecordType == entity.RecordTypeAnulacion {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecordRepo) ListByTenantOrdered(_ context.Context, tenantID string) ([]*entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.InvoiceRecord
	for _, r := range f.records {
		if r.TenantID == tenantID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) List(_ context.Context, tenantID string, filter repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	all, _ := f.ListByTenantOrdered(context.Background(), tenantID)
	return all, len(all), nil
}

func (f *fakeRecordRepo) ListByBatch(_ context.Context, batchID string) ([]*entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.InvoiceRecord
	for _, r := range f.records {
		if r.RemisionBatchID == batchID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ClaimPending(_ context.Context, tenantID, batchID string, limit int) ([]*entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.InvoiceRecord
	for _, r := range f.records {
		if len(out) >= limit {
			break
		}
		if r.TenantID == tenantID && r.AEATStatus == entity.AEATStatusPending {
			r.RemisionBatchID = batchID
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) UpdateSubmissionResult(_ context.Context, recordID, status, responseCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == recordID {
			r.AEATStatus = status
			r.AEATResponseCode = responseCode
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRecordRepo) UpdateQR(_ context.Context, recordID, qrURL, qrImage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == recordID {
			r.QRURL = qrURL
			r.QRImage = qrImage
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRecordRepo) CountPending(_ context.Context, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.TenantID == tenantID && r.AEATStatus == entity.AEATStatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecordRepo) ListTenantsWithPending(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range f.records {
		if r.AEATStatus == entity.AEATStatusPending && !seen[r.TenantID] {
			seen[r.TenantID] = true
			out = append(out, r.TenantID)
		}
	}
	return out, nil
}

// mutate aplica una mutación directa sobre el registro almacenado, saltándose
// la inmutabilidad del puerto. Solo para simular manipulación en tests.
func (f *fakeRecordRepo) mutate(id string, fn func(r *entity.InvoiceRecord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			fn(r)
			return
		}
	}
}

type fakeTenantRepo struct {
	mu   sync.Mutex
	cfgs map[string]*entity.TenantConfig

	// conflictsLeft fuerza fallos de CAS para simular otra réplica avanzando
	// la cabeza justo antes.
	conflictsLeft int
}

func newFakeTenantRepo(cfgs ...*entity.TenantConfig) *fakeTenantRepo {
	m := map[string]*entity.TenantConfig{}
	for _, c := range cfgs {
		m[c.TenantID] = c
	}
	return &fakeTenantRepo{cfgs: m}
}

func (f *fakeTenantRepo) Create(_ context.Context, cfg *entity.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs[cfg.TenantID] = cfg
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
	for _, c := range f.cfgs {
		if c.IsActive {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeTenantRepo) Update(_ context.Context, cfg *entity.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.cfgs[cfg.TenantID]
	if !ok {
		return domain.ErrNotFound
	}
	clone := *cfg
	clone.LastChainHuella = stored.LastChainHuella
	clone.LastChainRecordID = stored.LastChainRecordID
	clone.NextInvoiceSeq = stored.NextInvoiceSeq
	f.cfgs[cfg.TenantID] = &clone
	return nil
}

func (f *fakeTenantRepo) AdvanceChainHead(_ context.Context, tenantID, expectedHuella, newHuella, recordID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.cfgs[tenantID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return false, nil
	}
	if cfg.LastChainHuella != expectedHuella {
		return false, nil
	}
	cfg.LastChainHuella = newHuella
	cfg.LastChainRecordID = recordID
	return true, nil
}

func (f *fakeTenantRepo) NextInvoiceSeq(_ context.Context, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.cfgs[tenantID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n := cfg.NextInvoiceSeq
	if n == 0 {
		n = 1
	}
	cfg.NextInvoiceSeq = n + 1
	return n, nil
}

// setHead sobrescribe la cabeza directamente, para simular desincronización.
func (f *fakeTenantRepo) setHead(tenantID, huella string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg, ok := f.cfgs[tenantID]; ok {
		cfg.LastChainHuella = huella
	}
}

// fakeTxRunner ejecuta fn directamente sobre los fakes. Si fn falla, deshace
// los inserts hechos durante fn para imitar el rollback transaccional.
type fakeTxRunner struct {
	records *fakeRecordRepo
	tenants *fakeTenantRepo
}

func (f *fakeTxRunner) Records() repository.RecordRepository             { return f.records }
func (f *fakeTxRunner) TenantConfigs() repository.TenantConfigRepository { return f.tenants }

func (f *fakeTxRunner) RunChain(_ context.Context, fn func(tx ChainTx) error) error {
	f.records.mu.Lock()
	before := len(f.records.records)
	f.records.mu.Unlock()

	if err := fn(f); err != nil {
		f.records.mu.Lock()
		f.records.records = f.records.records[:before]
		f.records.mu.Unlock()
		return err
	}
	return nil
}

type fakeQR struct {
	fail bool
}

func (f *fakeQR) Generate(r *entity.InvoiceRecord) (string, string, error) {
	if f.fail {
		return "", "", fmt.Errorf("qr: render falló")
	}
	url := fmt.Sprintf("https://prewcf.aeat.es/wlpl/TIKE-CONT/ValidarQR?nif=%s&numserie=%s&fecha=%s&importe=%s",
		r.NIFEmisor, r.NumeroFactura, r.FechaExpedicion.Format("02-01-2006"), r.ImporteTotal.StringFixed(2))
	return url, "iVBORw0KGgo=", nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []*entity.AuditEvent
}

func (f *fakeAuditRepo) Create(_ context.Context, e *entity.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, tenantID string, filter repository.AuditFilter) ([]*entity.AuditEvent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.AuditEvent
	for _, e := range f.events {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (f *fakeAuditRepo) byType(eventType string) []*entity.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.AuditEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testTenantConfig(tenantID string) *entity.TenantConfig {
	return &entity.TenantConfig{
		ID:               "cfg-" + tenantID,
		TenantID:         tenantID,
		NIF:              "12345678Z",
		NombreFiscal:     "Empresa Demo SL",
		SerieFacturacion: "VF",
		AEATEnvironment:  entity.AEATEnvironmentTesting,
		AutoRemision:     true,
		IsActive:         true,
		NextInvoiceSeq:   1,
		CreatedAt:        time.Now().UTC(),
	}
}
