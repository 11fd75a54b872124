// Package scope propagates tenancy and actor context through context.Context.
//
// Producers attach the organization, acting user and correlation ID to the
// request context; Publish captures them onto the event envelope, and async
// handlers restore them so that downstream calls keep the same scope.
package scope

import "context"

type ctxKey int

const (
	orgKey ctxKey = iota
	userKey
	correlationKey
)

// WithOrg returns a context carrying the organization ID.
func WithOrg(ctx context.Context, orgID string) context.Context {
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey, orgID)
}

// WithUser returns a context carrying the acting user ID.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// WithCorrelation returns a context carrying the correlation ID that links
// a causal chain of events.
func WithCorrelation(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, correlationID)
}

// Capture extracts the org, user and correlation IDs from the context.
// Missing values come back as empty strings (system-generated events).
func Capture(ctx context.Context) (orgID, userID, correlationID string) {
	orgID, _ = ctx.Value(orgKey).(string)
	userID, _ = ctx.Value(userKey).(string)
	correlationID, _ = ctx.Value(correlationKey).(string)
	return orgID, userID, correlationID
}

// Restore injects scope values into a fresh context. Used by async dispatch,
// which must not inherit the publisher's cancellation.
func Restore(ctx context.Context, orgID, userID, correlationID string) context.Context {
	return WithCorrelation(WithUser(WithOrg(ctx, orgID), userID), correlationID)
}
