package pricing

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func tier(id int64, relType snowflake.ID, from int, to *int, validFrom time.Time, validTo *time.Time, price int64) pricingruledomain.TierRule {
	return pricingruledomain.TierRule{
		ID:                 snowflake.ID(id),
		RelationshipTypeID: relType,
		CountFrom:          from,
		CountTo:            to,
		ValidFrom:          validFrom,
		ValidTo:            validTo,
		PriceCents:         price,
		Active:             true,
	}
}

func intPtr(v int) *int { return &v }

func TestResolveTieredPicksMatchingBand(t *testing.T) {
	relType := snowflake.ID(7)
	validFrom := testDate.AddDate(0, -1, 0)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 1, intPtr(1), validFrom, nil, 2500),
			tier(2, relType, 2, intPtr(2), validFrom, nil, 5000),
			tier(3, relType, 3, nil, validFrom, nil, 10000),
		},
	}

	res, ok := ResolveTiered(snap, relType, 2, testDate)
	require.True(t, ok)
	assert.Equal(t, int64(5000), res.PriceCents)
	assert.Equal(t, snowflake.ID(2), res.RuleID)

	res, ok = ResolveTiered(snap, relType, 9, testDate)
	require.True(t, ok)
	assert.Equal(t, int64(10000), res.PriceCents)
}

func TestResolveTieredDeterministic(t *testing.T) {
	relType := snowflake.ID(7)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 1, nil, testDate.AddDate(0, -2, 0), nil, 1000),
			tier(2, relType, 1, nil, testDate.AddDate(0, -1, 0), nil, 1200),
		},
	}

	first, ok := ResolveTiered(snap, relType, 3, testDate)
	require.True(t, ok)
	second, ok := ResolveTiered(snap, relType, 3, testDate)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestResolveTieredTieBreakLatestValidFrom(t *testing.T) {
	relType := snowflake.ID(7)
	older := testDate.AddDate(0, -2, 0)
	newer := testDate.AddDate(0, -1, 0)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 1, nil, older, nil, 1000),
			tier(2, relType, 1, nil, newer, nil, 1500),
		},
	}

	res, ok := ResolveTiered(snap, relType, 2, testDate)
	require.True(t, ok)
	assert.Equal(t, int64(1500), res.PriceCents)
	assert.Equal(t, snowflake.ID(2), res.RuleID)
}

func TestResolveTieredTieBreakNarrowestBand(t *testing.T) {
	relType := snowflake.ID(7)
	validFrom := testDate.AddDate(0, -1, 0)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 1, nil, validFrom, nil, 1000),
			tier(2, relType, 3, nil, validFrom, nil, 3000),
		},
	}

	// Both bands cover count=4 with equal ValidFrom; the smallest
	// CountFrom wins.
	res, ok := ResolveTiered(snap, relType, 4, testDate)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(1), res.RuleID)
	assert.Equal(t, int64(1000), res.PriceCents)
}

func TestResolveTieredMissIsNotError(t *testing.T) {
	relType := snowflake.ID(7)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 2, intPtr(4), testDate.AddDate(0, -1, 0), nil, 5000),
		},
	}

	_, ok := ResolveTiered(snap, relType, 1, testDate)
	assert.False(t, ok)

	_, ok = ResolveTiered(snap, snowflake.ID(99), 3, testDate)
	assert.False(t, ok)
}

func TestResolveTieredRespectsValidity(t *testing.T) {
	relType := snowflake.ID(7)
	expired := testDate.AddDate(0, -1, 0)
	snap := &pricingruledomain.Snapshot{
		Tiers: []pricingruledomain.TierRule{
			tier(1, relType, 1, nil, testDate.AddDate(0, -3, 0), &expired, 1000),
		},
	}

	_, ok := ResolveTiered(snap, relType, 2, testDate)
	assert.False(t, ok)

	res, ok := ResolveTiered(snap, relType, 2, expired)
	require.True(t, ok)
	assert.Equal(t, int64(1000), res.PriceCents)
}

func TestResolveFlatLatestValidFromWins(t *testing.T) {
	snap := &pricingruledomain.Snapshot{
		Flat: []pricingruledomain.FlatRule{
			{ID: 1, PriceCents: 800, ValidFrom: testDate.AddDate(0, -3, 0), Active: true},
			{ID: 2, PriceCents: 900, ValidFrom: testDate.AddDate(0, -1, 0), Active: true},
			{ID: 3, PriceCents: 1100, ValidFrom: testDate.AddDate(0, 1, 0), Active: true},
		},
	}

	res, ok := ResolveFlat(snap, testDate)
	require.True(t, ok)
	assert.Equal(t, int64(900), res.PriceCents)
	assert.Equal(t, snowflake.ID(2), res.RuleID)
}

func TestResolveFlatTieBreakLowestID(t *testing.T) {
	validFrom := testDate.AddDate(0, -1, 0)
	snap := &pricingruledomain.Snapshot{
		Flat: []pricingruledomain.FlatRule{
			{ID: 5, PriceCents: 950, ValidFrom: validFrom, Active: true},
			{ID: 2, PriceCents: 900, ValidFrom: validFrom, Active: true},
		},
	}

	// Equal ValidFrom resolves to the lowest ID, same as the tiered
	// path.
	res, ok := ResolveFlat(snap, testDate)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(2), res.RuleID)
	assert.Equal(t, int64(900), res.PriceCents)
}

func TestResolveFlatNoRule(t *testing.T) {
	snap := &pricingruledomain.Snapshot{}
	_, ok := ResolveFlat(snap, testDate)
	assert.False(t, ok)
}
