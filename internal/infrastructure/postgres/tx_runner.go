package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaraba/verifactu-api/internal/application/ledger"
	"github.com/jaraba/verifactu-api/internal/application/remision"
	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ ledger.ChainTxRunner = (*TxRunner)(nil)
var _ remision.RemisionTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// chainTx repos atados a la transacción de sellado.
type chainTx struct {
	records *RecordRepo
	tenants *TenantConfigRepo
}

func (t chainTx) Records() repository.RecordRepository             { return t.records }
func (t chainTx) TenantConfigs() repository.TenantConfigRepository { return t.tenants }

// RunChain inicia una transacción, ejecuta fn con los repos de sellado atados
// a la tx y hace Commit o Rollback. El insert del registro y el avance de la
// cabeza de cadena caen o persisten juntos.
func (r *TxRunner) RunChain(ctx context.Context, fn func(tx ledger.ChainTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(chainTx{
		records: NewRecordRepository(tx),
		tenants: NewTenantConfigRepository(tx),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// remisionTx repos atados a la transacción de encolado.
type remisionTx struct {
	records *RecordRepo
	batches *BatchRepo
}

func (t remisionTx) Records() repository.RecordRepository { return t.records }
func (t remisionTx) Batches() repository.BatchRepository  { return t.batches }

// RunRemision inicia una transacción con los repos de encolado: la creación
// del lote y la reclamación de sus registros son atómicas.
func (r *TxRunner) RunRemision(ctx context.Context, fn func(tx remision.RemisionTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(remisionTx{
		records: NewRecordRepository(tx),
		batches: NewBatchRepository(tx),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
