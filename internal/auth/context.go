// ABOUTME: Request context helpers for the authenticated tenant
// ABOUTME: Stores and retrieves the tenant ID established by the HTTP middleware

package auth

import "context"

type contextKey struct{}

// WithTenant returns a context carrying the authenticated tenant ID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// TenantFromContext returns the authenticated tenant ID, or "" if the
// request was not authenticated.
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(contextKey{}).(string)
	return tenantID
}
