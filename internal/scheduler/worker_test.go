package scheduler

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
	publicationrepo "github.com/mutualabs/mutua/internal/publication/repository"
	publicationservice "github.com/mutualabs/mutua/internal/publication/service"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	rosterrepo "github.com/mutualabs/mutua/internal/roster/repository"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	schedulerrepo "github.com/mutualabs/mutua/internal/scheduler/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	node    *snowflake.Node
	orgID   snowflake.ID
	worker  *Scheduler
	ledger  *ledgerservice.Service
	relType snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Account{},
		&ledgerdomain.Movement{},
		&attributiondomain.Attribution{},
		&rosterdomain.Dependent{},
		&pricingruledomain.FlatRule{},
		&pricingruledomain.TierRule{},
		&schedulerdomain.RecomputeJob{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.New()
	cfg := &config.Config{Scheduler: config.SchedulerConfig{BatchSize: 10}}

	accountsRepo := ledgerrepo.Provide()
	poster := ledgerservice.New(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: accountsRepo,
	})
	recomputer := publicationservice.New(publicationservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Cfg:          cfg,
		Repo:         publicationrepo.Provide(),
		Attributions: attributionrepo.Provide(),
		Accounts:     accountsRepo,
		Roster:       rosterrepo.Provide(),
		Pricing:      pricing.NewService(pricing.Params{DB: db, Repo: pricingrulerepo.Provide()}),
		Poster:       poster,
	})
	worker := New(Params{
		DB:        db,
		Log:       log,
		Cfg:       cfg,
		GenID:     node,
		Clock:     clk,
		Repo:      schedulerrepo.Provide(),
		Recompute: recomputer,
	})

	orgID := node.Generate()
	return &fixture{
		t:       t,
		ctx:     orgcontext.WithOrgID(context.Background(), orgID),
		db:      db,
		node:    node,
		orgID:   orgID,
		worker:  worker,
		ledger:  poster,
		relType: node.Generate(),
	}
}

func (f *fixture) enroll(dependents int) (snowflake.ID, *ledgerdomain.Account) {
	f.t.Helper()

	affID := f.node.Generate()
	account, err := f.ledger.CreateAccount(f.ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID: affID.String(),
		Code:        "J38",
	})
	require.NoError(f.t, err)

	for i := 0; i < dependents; i++ {
		require.NoError(f.t, f.db.Create(&rosterdomain.Dependent{
			ID:                 f.node.Generate(),
			OrgID:              f.orgID,
			AffiliateID:        affID,
			Name:               "Dep",
			RelationshipTypeID: f.relType,
			Active:             true,
			CountsTowardTier:   true,
		}).Error)
	}

	accountID := account.ID
	require.NoError(f.t, f.db.Create(&attributiondomain.Attribution{
		ID:                  f.node.Generate(),
		OrgID:               f.orgID,
		AffiliateID:         affID,
		CoseguroState:       attributiondomain.CoseguroStateActive,
		DependentsAccountID: &accountID,
	}).Error)
	return affID, account
}

func (f *fixture) job(affID snowflake.ID) schedulerdomain.RecomputeJob {
	f.t.Helper()
	var jobs []schedulerdomain.RecomputeJob
	require.NoError(f.t, f.db.Where("affiliate_id = ?", affID).Find(&jobs).Error)
	require.Len(f.t, jobs, 1)
	return jobs[0]
}

func TestRunOncePostsDependentsCharge(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&pricingruledomain.TierRule{
		ID:                 f.node.Generate(),
		OrgID:              f.orgID,
		RelationshipTypeID: f.relType,
		CountFrom:          1,
		ValidFrom:          time.Now().UTC().Add(-24 * time.Hour),
		PriceCents:         3000,
		Active:             true,
	}).Error)
	affID, account := f.enroll(1)

	_, err := f.worker.Enqueue(f.ctx, f.db, affID)
	require.NoError(t, err)

	n, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := f.job(affID)
	assert.Equal(t, schedulerdomain.JobStatusDone, job.Status)
	assert.NotEmpty(t, job.RunToken)
	require.NotNil(t, job.FinishedAt)

	var movements []ledgerdomain.Movement
	require.NoError(t, f.db.Where("account_id = ?", account.ID).Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, ledgerdomain.OriginDependents, movements[0].Origin)
	assert.Equal(t, int64(3000), movements[0].AmountCents)
	assert.Equal(t, "recompute", movements[0].RefType)
}

func TestRunOnceCompletesSkipAsDone(t *testing.T) {
	f := newFixture(t)
	affID, account := f.enroll(1)
	_, err := f.ledger.DeactivateAccount(f.ctx, account.ID.String())
	require.NoError(t, err)

	_, err = f.worker.Enqueue(f.ctx, f.db, affID)
	require.NoError(t, err)

	n, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := f.job(affID)
	assert.Equal(t, schedulerdomain.JobStatusDone, job.Status)
	assert.Equal(t, "dependents account inactive", job.Note)
}

func TestRunOnceZeroDiffPostsNothing(t *testing.T) {
	f := newFixture(t)
	affID, account := f.enroll(1)

	_, err := f.worker.Enqueue(f.ctx, f.db, affID)
	require.NoError(t, err)

	n, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := f.job(affID)
	assert.Equal(t, schedulerdomain.JobStatusDone, job.Status)

	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.Movement{}).
		Where("account_id = ?", account.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnqueueRequiresOrg(t *testing.T) {
	f := newFixture(t)
	_, err := f.worker.Enqueue(context.Background(), f.db, f.node.Generate())
	assert.ErrorIs(t, err, orgcontext.ErrMissingOrgID)
}
