package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	relationshiprepo "github.com/mutualabs/mutua/internal/relationship/repository"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	rosterrepo "github.com/mutualabs/mutua/internal/roster/repository"
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
	svc         rosterdomain.Service
	repo        rosterdomain.Repository
	relType     *relationshipdomain.RelationshipType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&relationshipdomain.RelationshipType{},
		&rosterdomain.Dependent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := rosterrepo.Provide()
	svc := New(Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            clock.New(),
		Repo:             repo,
		RelationshipRepo: relationshiprepo.Provide(),
	})

	orgID := node.Generate()
	relType := &relationshipdomain.RelationshipType{
		ID:          node.Generate(),
		OrgID:       orgID,
		Code:        1,
		Description: "hijo/a",
		Active:      true,
	}
	require.NoError(t, db.Create(relType).Error)

	return &fixture{
		t:           t,
		ctx:         orgcontext.WithOrgID(context.Background(), orgID),
		db:          db,
		node:        node,
		orgID:       orgID,
		affiliateID: node.Generate(),
		svc:         svc,
		repo:        repo,
		relType:     relType,
	}
}

func (f *fixture) createDependent(name string) *rosterdomain.Dependent {
	f.t.Helper()
	dep, err := f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               name,
		RelationshipTypeID: f.relType.ID.String(),
	})
	require.NoError(f.t, err)
	return dep
}

func boolPtr(v bool) *bool { return &v }

func TestCreateDependent(t *testing.T) {
	f := newFixture(t)

	birth := time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC)
	dep, err := f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               "  Ana  ",
		BirthDate:          &birth,
		RelationshipTypeID: f.relType.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", dep.Name)
	assert.True(t, dep.Active)
	assert.True(t, dep.CountsTowardTier)
}

func TestCreateDependentValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        "not-a-number",
		Name:               "Ana",
		RelationshipTypeID: f.relType.ID.String(),
	})
	assert.ErrorIs(t, err, rosterdomain.ErrInvalidAffiliate)

	_, err = f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               "   ",
		RelationshipTypeID: f.relType.ID.String(),
	})
	assert.ErrorIs(t, err, rosterdomain.ErrInvalidName)

	_, err = f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               "Ana",
		RelationshipTypeID: f.node.Generate().String(),
	})
	assert.ErrorIs(t, err, rosterdomain.ErrInvalidRelationship)
}

func TestCreateDependentRejectsInactiveRelationship(t *testing.T) {
	f := newFixture(t)

	f.relType.Active = false
	require.NoError(t, f.db.Save(f.relType).Error)

	_, err := f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               "Ana",
		RelationshipTypeID: f.relType.ID.String(),
	})
	assert.ErrorIs(t, err, rosterdomain.ErrInvalidRelationship)
}

func TestUpdateDependent(t *testing.T) {
	f := newFixture(t)
	dep := f.createDependent("Ana")

	name := "Ana Maria"
	updated, err := f.svc.Update(f.ctx, dep.ID.String(), rosterdomain.UpdateRequest{
		Name:             &name,
		CountsTowardTier: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.False(t, updated.CountsTowardTier)

	empty := "  "
	_, err = f.svc.Update(f.ctx, dep.ID.String(), rosterdomain.UpdateRequest{Name: &empty})
	assert.ErrorIs(t, err, rosterdomain.ErrInvalidName)

	_, err = f.svc.Update(f.ctx, f.node.Generate().String(), rosterdomain.UpdateRequest{})
	assert.ErrorIs(t, err, rosterdomain.ErrNotFound)
}

func TestDeactivateDependent(t *testing.T) {
	f := newFixture(t)
	dep := f.createDependent("Ana")

	deactivated, err := f.svc.Deactivate(f.ctx, dep.ID.String())
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	again, err := f.svc.Deactivate(f.ctx, dep.ID.String())
	require.NoError(t, err)
	assert.False(t, again.Active)
}

func TestCountCountableSkipsInactiveAndExcluded(t *testing.T) {
	f := newFixture(t)

	f.createDependent("Ana")
	_, err := f.svc.Create(f.ctx, rosterdomain.CreateRequest{
		AffiliateID:        f.affiliateID.String(),
		Name:               "Luis",
		RelationshipTypeID: f.relType.ID.String(),
		CountsTowardTier:   boolPtr(false),
	})
	require.NoError(t, err)
	inactive := f.createDependent("Eva")
	_, err = f.svc.Deactivate(f.ctx, inactive.ID.String())
	require.NoError(t, err)

	count, err := f.repo.CountCountable(f.ctx, f.db, f.orgID, f.affiliateID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	byRel, err := f.repo.CountCountableByRelationship(f.ctx, f.db, f.orgID, f.affiliateID)
	require.NoError(t, err)
	assert.Equal(t, map[snowflake.ID]int{f.relType.ID: 1}, byRel)
}

func TestListByAffiliate(t *testing.T) {
	f := newFixture(t)

	f.createDependent("Ana")
	f.createDependent("Luis")

	deps, err := f.svc.List(f.ctx, f.affiliateID.String())
	require.NoError(t, err)
	assert.Len(t, deps, 2)

	other := f.node.Generate()
	deps, err = f.svc.List(f.ctx, other.String())
	require.NoError(t, err)
	assert.Empty(t, deps)
}
