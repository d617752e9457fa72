// Package contextkeys centralizes the context keys shared across the
// authorization core so producers and consumers agree on one definition.
package contextkeys

import "context"

// Key is the context key type, distinct from plain strings to avoid
// collisions with third-party packages.
type Key string

const (
	// ClaimsKey holds *guard.Claims for the authenticated request.
	// Set by the token middleware; read by the guard middleware.
	ClaimsKey Key = "claims"

	// ScopedGroupsKey holds []string: the group set a request was narrowed
	// to by guard.Enforce / guard.EnforcePrimaryGroup.
	ScopedGroupsKey Key = "scoped_groups"

	// RequestIDKey holds the request id string assigned at the edge.
	RequestIDKey Key = "request_id"
)

// WithScopedGroups stores the narrowed group set in the context.
func WithScopedGroups(ctx context.Context, groups []string) context.Context {
	return context.WithValue(ctx, ScopedGroupsKey, groups)
}

// ScopedGroups retrieves the narrowed group set, or nil.
func ScopedGroups(ctx context.Context) []string {
	groups, _ := ctx.Value(ScopedGroupsKey).([]string)
	return groups
}

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID retrieves the request id, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
