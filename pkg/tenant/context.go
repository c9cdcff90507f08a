package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const (
	orgIDKey   contextKey = "org_id"
	orgSlugKey contextKey = "org_slug"
)

var (
	// ErrNoOrgInContext is returned when organization context is missing
	ErrNoOrgInContext = errors.New("no organization in context")
)

// WithOrgContext adds organization information to the context.
// This should be called by middleware after extracting the org from the token.
func WithOrgContext(ctx context.Context, id, slug string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, id)
	ctx = context.WithValue(ctx, orgSlugKey, slug)
	return ctx
}

// WithOrgID adds only the organization ID to context
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// OrgID extracts the organization ID from context.
// Returns ErrNoOrgInContext if it is not present.
// Repositories use this to scope every query; a row outside the caller's org
// must be indistinguishable from a missing row.
func OrgID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(orgIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoOrgInContext
	}
	return id, nil
}

// OrgSlug extracts the organization slug from context
func OrgSlug(ctx context.Context) (string, error) {
	slug, ok := ctx.Value(orgSlugKey).(string)
	if !ok || slug == "" {
		return "", ErrNoOrgInContext
	}
	return slug, nil
}

// MustOrgID extracts the organization ID and panics if not found.
// Use only in cases where missing org context is a programming error.
func MustOrgID(ctx context.Context) string {
	id, err := OrgID(ctx)
	if err != nil {
		panic("organization ID not found in context")
	}
	return id
}
