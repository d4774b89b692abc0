package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Context captures the school a request operates on and the user acting inside it.
// Middleware attaches it once the school has been resolved from the caller's credentials.
type Context struct {
	SchoolID uuid.UUID
	Slug     string
	ShortID  string
	ActorID  uuid.UUID
}

type ctxKey string

const tenantKey ctxKey = "SCHOOLHUB_TENANT"

// WithContext returns a derived context carrying the tenant Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	v := ctx.Value(tenantKey)
	if v == nil {
		return Context{}, false
	}

	tc, ok := v.(Context)
	return tc, ok
}

// SchoolID returns the current school id or uuid.Nil when no tenant is attached.
func SchoolID(ctx context.Context) uuid.UUID {
	tc, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return tc.SchoolID
}
