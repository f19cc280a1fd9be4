// Package orgcontext carries the acting organization through contexts.
package orgcontext

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// ErrMissingOrgID is returned by callers that require an acting
// organization in the context.
var ErrMissingOrgID = errors.New("missing organization in context")

type key struct{}

func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, key{}, orgID)
}

func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(key{}).(snowflake.ID)
	return id, ok
}
