//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/store"
	"ledgerd/internal/receipt/models"
	"ledgerd/pkg/platform/sentinel"
	"ledgerd/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx      context.Context
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../migrations")
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(s.ctx, "TRUNCATE TABLE ledger_entries")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) entry(receiptID, tenantID, parentID string) ledger.Entry {
	return ledger.Entry{
		Receipt: models.DecisionReceipt{
			ReceiptID:       receiptID,
			GateID:          "gate-1",
			EvaluationPoint: models.PointPreMerge,
			TimestampUTC:    time.Now().UTC().Truncate(time.Microsecond),
			Decision:        models.Decision{Status: models.StatusPass},
			Actor:           models.Actor{RepoID: "acme/repo"},
			ParentReceiptID: parentID,
			Degraded:        true,
			KID:             "k1",
			Signature:       "sig",
		},
		TenantID:       tenantID,
		PayloadHash:    "sha256:deadbeef",
		IngestedAt:     time.Now().UTC().Truncate(time.Microsecond),
		RetentionState: ledger.RetentionActive,
	}
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	entry := s.entry("r1", "acme", "")
	s.Require().NoError(s.store.Insert(s.ctx, entry))

	got, err := s.store.Get(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(entry.Receipt.ReceiptID, got.Receipt.ReceiptID)
	s.Equal("acme", got.TenantID)
	s.Equal(entry.PayloadHash, got.PayloadHash)
	s.Equal(ledger.RetentionActive, got.RetentionState)
}

func (s *PostgresStoreSuite) TestInsertDuplicateConflicts() {
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r1", "acme", "")))

	err := s.store.Insert(s.ctx, s.entry("r1", "acme", ""))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestChildren() {
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("root", "acme", "")))
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("c1", "acme", "root")))
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("c2", "acme", "root")))

	children, err := s.store.Children(s.ctx, "root")
	s.Require().NoError(err)
	s.Len(children, 2)
}

func (s *PostgresStoreSuite) TestTenantsAndActive() {
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r1", "acme", "")))
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r2", "globex", "")))

	tenants, err := s.store.Tenants(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"acme", "globex"}, tenants)

	active, err := s.store.ActiveByTenant(s.ctx, "acme")
	s.Require().NoError(err)
	s.Len(active, 1)
}

func (s *PostgresStoreSuite) TestRetentionTransition() {
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r1", "acme", "")))

	s.Require().NoError(s.store.SetRetentionState(s.ctx, "r1", ledger.RetentionArchived))

	got, err := s.store.Get(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(ledger.RetentionArchived, got.RetentionState)

	active, err := s.store.ActiveByTenant(s.ctx, "acme")
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *PostgresStoreSuite) TestLegalHoldAcrossTenant() {
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r1", "acme", "")))
	s.Require().NoError(s.store.Insert(s.ctx, s.entry("r2", "acme", "")))

	s.Require().NoError(s.store.SetLegalHold(s.ctx, "acme", true))

	for _, id := range []string{"r1", "r2"} {
		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.True(got.LegalHold)
	}
}

func (s *PostgresStoreSuite) TestPayloadImmutableAcrossMetadataUpdates() {
	entry := s.entry("r1", "acme", "")
	s.Require().NoError(s.store.Insert(s.ctx, entry))

	s.Require().NoError(s.store.SetRetentionState(s.ctx, "r1", ledger.RetentionArchived))
	s.Require().NoError(s.store.SetLegalHold(s.ctx, "acme", true))

	got, err := s.store.Get(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(entry.Receipt, got.Receipt)
}
