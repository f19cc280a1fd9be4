// Package pricing resolves the price of a co-insurance or dependents
// relationship on a given date from a rule snapshot.
//
// Resolution is a pure function of its inputs: it never reads the
// store and is safe to call repeatedly during recomputation fan-out.
package pricing

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
)

// Resolution is the outcome of a successful price lookup.
type Resolution struct {
	PriceCents int64
	RuleID     snowflake.ID
}

// ResolveFlat picks the flat (co-insurance) rule with the greatest
// ValidFrom not after asOf, lowest ID among equals. ok is false when
// no rule covers the date.
func ResolveFlat(snap *pricingruledomain.Snapshot, asOf time.Time) (Resolution, bool) {
	var best *pricingruledomain.FlatRule
	for i := range snap.Flat {
		rule := &snap.Flat[i]
		if !rule.Active || rule.ValidFrom.After(asOf) {
			continue
		}
		if best == nil || rule.ValidFrom.After(best.ValidFrom) {
			best = rule
			continue
		}
		if rule.ValidFrom.Equal(best.ValidFrom) && rule.ID < best.ID {
			best = rule
		}
	}
	if best == nil {
		return Resolution{}, false
	}
	return Resolution{PriceCents: best.PriceCents, RuleID: best.ID}, true
}

// ResolveTiered picks the tier covering (relationshipType, count) on
// asOf. When an in-progress edit leaves overlapping tiers, the rule
// with the greatest ValidFrom wins; among equals the smallest
// CountFrom (narrowest band), then the lowest ID. A miss is a normal
// zero-price outcome, not an error.
func ResolveTiered(snap *pricingruledomain.Snapshot, relationshipTypeID snowflake.ID, count int, asOf time.Time) (Resolution, bool) {
	var best *pricingruledomain.TierRule
	for i := range snap.Tiers {
		rule := &snap.Tiers[i]
		if rule.RelationshipTypeID != relationshipTypeID {
			continue
		}
		if !rule.Covers(count, asOf) {
			continue
		}
		if best == nil || tierBeats(rule, best) {
			best = rule
		}
	}
	if best == nil {
		return Resolution{}, false
	}
	return Resolution{PriceCents: best.PriceCents, RuleID: best.ID}, true
}

func tierBeats(candidate, incumbent *pricingruledomain.TierRule) bool {
	if !candidate.ValidFrom.Equal(incumbent.ValidFrom) {
		return candidate.ValidFrom.After(incumbent.ValidFrom)
	}
	if candidate.CountFrom != incumbent.CountFrom {
		return candidate.CountFrom < incumbent.CountFrom
	}
	return candidate.ID < incumbent.ID
}
