package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/jaraba/verifactu-api/internal/domain"
)

type TenantConfigRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     *TenantConfigRepo
	tenantID string
	ctx      context.Context
}

func (s *TenantConfigRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock
	s.repo = NewTenantConfigRepository(mock)
	s.tenantID = uuid.New().String()
	s.ctx = context.Background()
}

func (s *TenantConfigRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestTenantConfigRepoTestSuite(t *testing.T) {
	suite.Run(t, new(TenantConfigRepoTestSuite))
}

func (s *TenantConfigRepoTestSuite) TestAdvanceChainHeadGanaCAS() {
	recordID := uuid.New().String()

	s.mock.ExpectExec(`UPDATE tenant_configs\s+SET last_chain_huella`).
		WithArgs(s.tenantID, "HUELLA-PREVIA", "HUELLA-NUEVA", recordID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.repo.AdvanceChainHead(s.ctx, s.tenantID, "HUELLA-PREVIA", "HUELLA-NUEVA", recordID)
	assert.NoError(s.T(), err)
	assert.True(s.T(), ok)
}

func (s *TenantConfigRepoTestSuite) TestAdvanceChainHeadPierdeCAS() {
	recordID := uuid.New().String()

	// Otra réplica ya avanzó la cabeza: el WHERE no casa ninguna fila.
	s.mock.ExpectExec(`UPDATE tenant_configs\s+SET last_chain_huella`).
		WithArgs(s.tenantID, "HUELLA-VIEJA", "HUELLA-NUEVA", recordID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.repo.AdvanceChainHead(s.ctx, s.tenantID, "HUELLA-VIEJA", "HUELLA-NUEVA", recordID)
	assert.NoError(s.T(), err)
	assert.False(s.T(), ok)
}

func (s *TenantConfigRepoTestSuite) TestNextInvoiceSeq() {
	s.mock.ExpectQuery(`UPDATE tenant_configs\s+SET next_invoice_seq = next_invoice_seq \+ 1`).
		WithArgs(s.tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"next_invoice_seq"}).AddRow(int64(42)))

	n, err := s.repo.NextInvoiceSeq(s.ctx, s.tenantID)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(42), n)
}

func (s *TenantConfigRepoTestSuite) TestNextInvoiceSeqTenantDesconocido() {
	s.mock.ExpectQuery(`UPDATE tenant_configs\s+SET next_invoice_seq = next_invoice_seq \+ 1`).
		WithArgs(s.tenantID).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.repo.NextInvoiceSeq(s.ctx, s.tenantID)
	assert.ErrorIs(s.T(), err, domain.ErrNotFound)
}
