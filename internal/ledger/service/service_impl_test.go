package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mutualabs/mutua/internal/clock"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/internal/ledger/repository"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Account{}, &ledgerdomain.Movement{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.New(),
		Repo:  repository.Provide(),
	})

	ctx := orgcontext.WithOrgID(context.Background(), node.Generate())
	return svc, ctx
}

func createAccount(t *testing.T, svc *Service, ctx context.Context, opening int64) *ledgerdomain.Account {
	t.Helper()
	account, err := svc.CreateAccount(ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID:         svc.genID.Generate().String(),
		Code:                "J22",
		OpeningBalanceCents: opening,
	})
	require.NoError(t, err)
	return account
}

func TestPostUpdatesRunningBalance(t *testing.T) {
	svc, ctx := newTestService(t)
	account := createAccount(t, svc, ctx, 1000)

	m1, err := svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginCoseguro,
		AmountCents: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(700), m1.BalanceAfterCents)

	m2, err := svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   ledgerdomain.DirectionCredit,
		Origin:      ledgerdomain.OriginCashPayment,
		AmountCents: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), m2.BalanceAfterCents)

	reloaded, err := svc.GetAccount(ctx, account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), reloaded.CurrentBalanceCents)
}

func TestBalanceReplayInvariant(t *testing.T) {
	svc, ctx := newTestService(t)
	account := createAccount(t, svc, ctx, 2500)

	posts := []struct {
		direction ledgerdomain.Direction
		amount    int64
	}{
		{ledgerdomain.DirectionDebit, 800},
		{ledgerdomain.DirectionCredit, 200},
		{ledgerdomain.DirectionDebit, 1300},
		{ledgerdomain.DirectionCredit, 2500},
		{ledgerdomain.DirectionDebit, 50},
	}
	for _, p := range posts {
		_, err := svc.Post(ctx, ledgerdomain.PostRequest{
			AccountID:   account.ID,
			Direction:   p.direction,
			Origin:      ledgerdomain.OriginAdjustment,
			AmountCents: p.amount,
		})
		require.NoError(t, err)
	}

	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	movements, err := svc.repo.ListMovements(ctx, svc.db, orgID, account.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, movements, len(posts))

	running := account.OpeningBalanceCents
	for _, m := range movements {
		running += m.Signed()
		assert.Equal(t, running, m.BalanceAfterCents)
	}

	reloaded, err := svc.GetAccount(ctx, account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, running, reloaded.CurrentBalanceCents)
}

func TestReverseRoundTrip(t *testing.T) {
	svc, ctx := newTestService(t)
	account := createAccount(t, svc, ctx, 1000)

	posted, err := svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginCoseguro,
		AmountCents: 450,
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, posted.ID.String(), "mispost")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.OriginReversal, reversal.Origin)
	assert.Equal(t, ledgerdomain.DirectionCredit, reversal.Direction)
	assert.Equal(t, posted.AmountCents, reversal.AmountCents)
	require.NotNil(t, reversal.ReversalOfID)
	assert.Equal(t, posted.ID, *reversal.ReversalOfID)
	assert.Equal(t, int64(1000), reversal.BalanceAfterCents)

	// The original stays untouched.
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	original, err := svc.repo.FindMovementByID(ctx, svc.db, orgID, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, posted.BalanceAfterCents, original.BalanceAfterCents)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	svc, ctx := newTestService(t)
	account := createAccount(t, svc, ctx, 0)

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginAdjustment,
		AmountCents: 0,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   "sideways",
		Origin:      ledgerdomain.OriginAdjustment,
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidDirection)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   svc.genID.Generate(),
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginAdjustment,
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	svc, ctx := newTestService(t)
	account := createAccount(t, svc, ctx, 0)

	_, err := svc.DeactivateAccount(ctx, account.ID.String())
	require.NoError(t, err)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   account.ID,
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginCoseguro,
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountInactive)
}

func TestCreateAccountIdempotency(t *testing.T) {
	svc, ctx := newTestService(t)

	first, err := svc.CreateAccount(ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID:    svc.genID.Generate().String(),
		Code:           "J38",
		IdempotencyKey: "create-once",
	})
	require.NoError(t, err)

	second, err := svc.CreateAccount(ctx, ledgerdomain.CreateAccountRequest{
		AffiliateID:    first.AffiliateID.String(),
		Code:           "J38",
		IdempotencyKey: "create-once",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
