package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	attributionrepo "github.com/mutualabs/mutua/internal/attribution/repository"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/config"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	ledgerrepo "github.com/mutualabs/mutua/internal/ledger/repository"
	ledgerservice "github.com/mutualabs/mutua/internal/ledger/service"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/mutualabs/mutua/internal/pricing"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	pricingrulerepo "github.com/mutualabs/mutua/internal/pricingrule/repository"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	rosterrepo "github.com/mutualabs/mutua/internal/roster/repository"
	"github.com/mutualabs/mutua/internal/scheduler"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	schedulerrepo "github.com/mutualabs/mutua/internal/scheduler/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	t           *testing.T
	ctx         context.Context
	db          *gorm.DB
	node        *snowflake.Node
	orgID       snowflake.ID
	affiliateID snowflake.ID
	svc         attributiondomain.Service
	ledger      *ledgerservice.Service
	jobs        schedulerdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.Movement{},
		&attributiondomain.Attribution{},
		&schedulerdomain.RecomputeJob{},
		&rosterdomain.Dependent{},
		&pricingruledomain.FlatRule{},
		&pricingruledomain.TierRule{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.New()

	accountsRepo := ledgerrepo.Provide()
	poster := ledgerservice.New(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: accountsRepo,
	})
	pricingSvc := pricing.NewService(pricing.Params{DB: db, Repo: pricingrulerepo.Provide()})
	jobsRepo := schedulerrepo.Provide()
	jobs := scheduler.New(scheduler.Params{
		DB: db, Log: log, Cfg: &config.Config{}, GenID: node, Clock: clk, Repo: jobsRepo,
	})

	svc := New(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     attributionrepo.Provide(),
		Accounts: accountsRepo,
		Poster:   poster,
		Pricing:  pricingSvc,
		Roster:   rosterrepo.Provide(),
		Jobs:     jobs,
	})

	orgID := node.Generate()
	return &fixture{
		t:           t,
		ctx:         orgcontext.WithOrgID(context.Background(), orgID),
		db:          db,
		node:        node,
		orgID:       orgID,
		affiliateID: node.Generate(),
		svc:         svc,
		ledger:      poster,
		jobs:        jobsRepo,
	}
}

func (f *fixture) newAccount(code string) *ledgerdomain.Account {
	f.t.Helper()
	account, err := f.ledger.CreateAccount(f.ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID: f.affiliateID.String(),
		Code:        code,
	})
	require.NoError(f.t, err)
	return account
}

func (f *fixture) seedFlatRule(priceCents int64) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&pricingruledomain.FlatRule{
		ID:         f.node.Generate(),
		OrgID:      f.orgID,
		PriceCents: priceCents,
		ValidFrom:  time.Now().UTC().Add(-24 * time.Hour),
		Active:     true,
	}).Error)
}

func (f *fixture) seedDependent(relTypeID snowflake.ID) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&rosterdomain.Dependent{
		ID:                 f.node.Generate(),
		OrgID:              f.orgID,
		AffiliateID:        f.affiliateID,
		Name:               "Ana",
		RelationshipTypeID: relTypeID,
		Active:             true,
		CountsTowardTier:   true,
	}).Error)
}

func (f *fixture) movements(accountID snowflake.ID) []ledgerdomain.Movement {
	f.t.Helper()
	var movements []ledgerdomain.Movement
	require.NoError(f.t, f.db.
		Where("account_id = ?", accountID).
		Order("id asc").
		Find(&movements).Error)
	return movements
}

func TestActivatePostsInitialCharge(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	account := f.newAccount("J22")

	attr, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, attributiondomain.CoseguroStateActive, attr.CoseguroState)
	require.NotNil(t, attr.CoseguroAccountID)
	assert.Equal(t, account.ID, *attr.CoseguroAccountID)
	require.NotNil(t, attr.CoseguroMovementID)

	movements := f.movements(account.ID)
	require.Len(t, movements, 1)
	assert.Equal(t, ledgerdomain.OriginCoseguro, movements[0].Origin)
	assert.Equal(t, ledgerdomain.DirectionDebit, movements[0].Direction)
	assert.Equal(t, int64(1500), movements[0].AmountCents)
}

func TestActivateWithoutFlatRuleSkipsCharge(t *testing.T) {
	f := newFixture(t)
	account := f.newAccount("J22")

	attr, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, attributiondomain.CoseguroStateActive, attr.CoseguroState)
	assert.Nil(t, attr.CoseguroMovementID)
	assert.Empty(t, f.movements(account.ID))
}

func TestActivateOnDifferentAccountRequiresReassignment(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	accountX := f.newAccount("J22")
	accountY := f.newAccount("J22B")

	_, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: accountX.ID.String(),
	})
	require.NoError(t, err)

	// Without the opt-in the conflict is surfaced, nothing is posted.
	_, err = f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: accountY.ID.String(),
	})
	assert.ErrorIs(t, err, attributiondomain.ErrReassignmentRequired)
	require.Len(t, f.movements(accountX.ID), 1)
	assert.Empty(t, f.movements(accountY.ID))

	// With it, X gets the reversal and Y the new charge atomically.
	attr, err := f.svc.Reassign(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: accountY.ID.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, attr.CoseguroAccountID)
	assert.Equal(t, accountY.ID, *attr.CoseguroAccountID)

	xMovements := f.movements(accountX.ID)
	require.Len(t, xMovements, 2)
	assert.Equal(t, ledgerdomain.OriginReversal, xMovements[1].Origin)
	assert.Equal(t, ledgerdomain.DirectionCredit, xMovements[1].Direction)
	require.NotNil(t, xMovements[1].ReversalOfID)
	assert.Equal(t, xMovements[0].ID, *xMovements[1].ReversalOfID)
	assert.Equal(t, int64(0), xMovements[1].BalanceAfterCents)

	yMovements := f.movements(accountY.ID)
	require.Len(t, yMovements, 1)
	assert.Equal(t, ledgerdomain.OriginCoseguro, yMovements[0].Origin)
	assert.Equal(t, int64(1500), yMovements[0].AmountCents)
}

func TestActivateSameAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	account := f.newAccount("J22")

	_, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)
	_, err = f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)

	assert.Len(t, f.movements(account.ID), 1)
}

func TestActivateDependentsRequiresCountableDependent(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	coseguro := f.newAccount("J22")
	dependents := f.newAccount("J38")

	_, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID:   coseguro.ID.String(),
		DependentsAccountID: dependents.ID.String(),
	})
	assert.ErrorIs(t, err, attributiondomain.ErrNoCountableDependent)
}

func TestActivateDependentsEnqueuesRecompute(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	coseguro := f.newAccount("J22")
	dependents := f.newAccount("J38")
	f.seedDependent(f.node.Generate())

	attr, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID:   coseguro.ID.String(),
		DependentsAccountID: dependents.ID.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, attr.DependentsAccountID)
	assert.Equal(t, dependents.ID, *attr.DependentsAccountID)

	jobs, err := f.jobs.ListByAffiliate(f.ctx, f.db, f.orgID, f.affiliateID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, schedulerdomain.JobStatusPending, jobs[0].Status)
}

func TestWithdrawKeepsDependentsAccount(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	coseguro := f.newAccount("J22")
	dependents := f.newAccount("J38")
	f.seedDependent(f.node.Generate())

	_, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID:   coseguro.ID.String(),
		DependentsAccountID: dependents.ID.String(),
	})
	require.NoError(t, err)

	attr, err := f.svc.Withdraw(f.ctx, f.affiliateID.String())
	require.NoError(t, err)
	assert.Equal(t, attributiondomain.CoseguroStateWithdrawn, attr.CoseguroState)
	assert.Nil(t, attr.CoseguroAccountID)
	require.NotNil(t, attr.DependentsAccountID)
	assert.Equal(t, dependents.ID, *attr.DependentsAccountID)

	// No reversal is posted on withdrawal.
	assert.Len(t, f.movements(coseguro.ID), 1)

	_, err = f.svc.Withdraw(f.ctx, f.affiliateID.String())
	assert.ErrorIs(t, err, attributiondomain.ErrNotActive)
}

func TestReactivateAfterWithdraw(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	account := f.newAccount("J22")

	_, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)
	_, err = f.svc.Withdraw(f.ctx, f.affiliateID.String())
	require.NoError(t, err)

	attr, err := f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, attributiondomain.CoseguroStateActive, attr.CoseguroState)

	// A fresh initial charge is posted alongside the first one.
	assert.Len(t, f.movements(account.ID), 2)
}

func TestActivateRejectsForeignAccount(t *testing.T) {
	f := newFixture(t)
	f.seedFlatRule(1500)
	other := f.node.Generate()
	account, err := f.ledger.CreateAccount(f.ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID: other.String(),
		Code:        "J22",
	})
	require.NoError(t, err)

	_, err = f.svc.Activate(f.ctx, f.affiliateID.String(), attributiondomain.ActivateRequest{
		CoseguroAccountID: account.ID.String(),
	})
	assert.ErrorIs(t, err, attributiondomain.ErrInvalidAccount)
}
