package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jaraba/verifactu-api/internal/domain"
	"github.com/jaraba/verifactu-api/internal/domain/entity"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ repository.TenantConfigRepository = (*TenantConfigRepo)(nil)

const tenantConfigColumns = `id, tenant_id, nif, nombre_fiscal, serie_facturacion,
	aeat_environment, auto_remision, is_active,
	COALESCE(last_chain_huella, ''), COALESCE(last_chain_record_id, ''), next_invoice_seq,
	COALESCE(certificate_subject, ''), certificate_valid_until, created_at, updated_at`

// TenantConfigRepo implementación de TenantConfigRepository (usable con pool o tx).
type TenantConfigRepo struct {
	q Querier
}

// NewTenantConfigRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTenantConfigRepository(q Querier) *TenantConfigRepo {
	return &TenantConfigRepo{q: q}
}

// Create persiste la configuración inicial del tenant.
func (r *TenantConfigRepo) Create(ctx context.Context, cfg *entity.TenantConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO tenant_configs (id, tenant_id, nif, nombre_fiscal, serie_facturacion,
			aeat_environment, auto_remision, is_active, last_chain_huella, last_chain_record_id,
			next_invoice_seq, certificate_subject, certificate_valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		cfg.ID, cfg.TenantID, cfg.NIF, cfg.NombreFiscal, cfg.SerieFacturacion,
		cfg.AEATEnvironment, cfg.AutoRemision, cfg.IsActive,
		nullIfEmpty(cfg.LastChainHuella), nullIfEmpty(cfg.LastChainRecordID),
		cfg.NextInvoiceSeq, nullIfEmpty(cfg.CertificateSubject), cfg.CertificateValidUntil,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: el tenant ya tiene configuración", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert tenant config: %w", err)
	}
	return nil
}

// GetByTenantID obtiene la configuración del tenant.
func (r *TenantConfigRepo) GetByTenantID(ctx context.Context, tenantID string) (*entity.TenantConfig, error) {
	query := `SELECT ` + tenantConfigColumns + ` FROM tenant_configs WHERE tenant_id = $1`
	cfg, err := scanTenantConfig(r.q.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	return cfg, nil
}

// ListActive devuelve los tenants activos.
func (r *TenantConfigRepo) ListActive(ctx context.Context) ([]*entity.TenantConfig, error) {
	query := `SELECT ` + tenantConfigColumns + ` FROM tenant_configs WHERE is_active ORDER BY tenant_id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var list []*entity.TenantConfig
	for rows.Next() {
		cfg, err := scanTenantConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant config: %w", err)
		}
		list = append(list, cfg)
	}
	return list, rows.Err()
}

// Update persiste los campos editables. La cabeza de cadena y el contador de
// serie solo cambian por AdvanceChainHead y NextInvoiceSeq.
func (r *TenantConfigRepo) Update(ctx context.Context, cfg *entity.TenantConfig) error {
	query := `
		UPDATE tenant_configs
		SET nif                     = $2,
		    nombre_fiscal           = $3,
		    serie_facturacion       = $4,
		    aeat_environment        = $5,
		    auto_remision           = $6,
		    is_active               = $7,
		    certificate_subject     = $8,
		    certificate_valid_until = $9,
		    updated_at              = now()
		WHERE tenant_id = $1`
	tag, err := r.q.Exec(ctx, query,
		cfg.TenantID, cfg.NIF, cfg.NombreFiscal, cfg.SerieFacturacion,
		cfg.AEATEnvironment, cfg.AutoRemision, cfg.IsActive,
		nullIfEmpty(cfg.CertificateSubject), cfg.CertificateValidUntil,
	)
	if err != nil {
		return fmt.Errorf("update tenant config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdvanceChainHead avanza la cabeza de cadena con compare-and-swap: el WHERE
// exige que la huella actual siga siendo la esperada. Cero filas afectadas
// significa que otro registro ganó la carrera.
func (r *TenantConfigRepo) AdvanceChainHead(ctx context.Context, tenantID, expectedHuella, newHuella, recordID string) (bool, error) {
	query := `
		UPDATE tenant_configs
		SET last_chain_huella    = $3,
		    last_chain_record_id = $4,
		    updated_at           = now()
		WHERE tenant_id = $1 AND COALESCE(last_chain_huella, '') = $2`
	tag, err := r.q.Exec(ctx, query, tenantID, expectedHuella, newHuella, recordID)
	if err != nil {
		return false, fmt.Errorf("advance chain head: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// NextInvoiceSeq reserva y devuelve el siguiente número de la serie de forma
// atómica. Dentro de la transacción de sellado, un rollback devuelve el
// número al contador.
func (r *TenantConfigRepo) NextInvoiceSeq(ctx context.Context, tenantID string) (int64, error) {
	query := `
		UPDATE tenant_configs
		SET next_invoice_seq = next_invoice_seq + 1,
		    updated_at       = now()
		WHERE tenant_id = $1
		RETURNING next_invoice_seq - 1`
	var n int64
	if err := r.q.QueryRow(ctx, query, tenantID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("next invoice seq: %w", err)
	}
	return n, nil
}

func scanTenantConfig(row pgx.Row) (*entity.TenantConfig, error) {
	var cfg entity.TenantConfig
	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.NIF, &cfg.NombreFiscal, &cfg.SerieFacturacion,
		&cfg.AEATEnvironment, &cfg.AutoRemision, &cfg.IsActive,
		&cfg.LastChainHuella, &cfg.LastChainRecordID, &cfg.NextInvoiceSeq,
		&cfg.CertificateSubject, &cfg.CertificateValidUntil, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
