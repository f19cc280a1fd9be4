package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	relationshiprepo "github.com/mutualabs/mutua/internal/relationship/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (relationshipdomain.Service, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&relationshipdomain.RelationshipType{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.New(),
		Repo:  relationshiprepo.Provide(),
	})
	return svc, orgcontext.WithOrgID(context.Background(), node.Generate())
}

func TestCreateRelationshipType(t *testing.T) {
	svc, ctx := newService(t)

	rt, err := svc.Create(ctx, relationshipdomain.CreateRequest{Code: 1, Description: " hijo/a "})
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Code)
	assert.Equal(t, "hijo/a", rt.Description)
	assert.True(t, rt.Active)
}

func TestCreateRelationshipTypeValidation(t *testing.T) {
	svc, ctx := newService(t)

	_, err := svc.Create(ctx, relationshipdomain.CreateRequest{Code: 0, Description: "hijo/a"})
	assert.ErrorIs(t, err, relationshipdomain.ErrInvalidCode)

	_, err = svc.Create(ctx, relationshipdomain.CreateRequest{Code: 1, Description: "  "})
	assert.ErrorIs(t, err, relationshipdomain.ErrInvalidDescription)

	_, err = svc.Create(context.Background(), relationshipdomain.CreateRequest{Code: 1, Description: "hijo/a"})
	assert.ErrorIs(t, err, relationshipdomain.ErrInvalidOrganization)
}

func TestCreateRelationshipTypeDuplicateCode(t *testing.T) {
	svc, ctx := newService(t)

	_, err := svc.Create(ctx, relationshipdomain.CreateRequest{Code: 1, Description: "hijo/a"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, relationshipdomain.CreateRequest{Code: 1, Description: "conyuge"})
	assert.ErrorIs(t, err, relationshipdomain.ErrDuplicateCode)
}

func TestDeactivateRelationshipType(t *testing.T) {
	svc, ctx := newService(t)

	rt, err := svc.Create(ctx, relationshipdomain.CreateRequest{Code: 1, Description: "hijo/a"})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, rt.ID.String())
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	// Deactivated types drop out of the default listing but stay
	// fetchable for historic rules.
	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	got, err := svc.Get(ctx, rt.ID.String())
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetRelationshipTypeNotFound(t *testing.T) {
	svc, ctx := newService(t)

	_, err := svc.Get(ctx, "9999999")
	assert.ErrorIs(t, err, relationshipdomain.ErrNotFound)

	_, err = svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, relationshipdomain.ErrInvalidID)
}
