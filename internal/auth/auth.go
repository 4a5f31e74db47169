// Package auth resolves the current customer identity. Guest checkout is a
// first-class path: a missing identity is not an error.
package auth

import "context"

type Provider interface {
	// CurrentUser returns the authenticated user id, or nil for guests.
	CurrentUser(ctx context.Context) *string
}

type contextKey struct{}

// WithUser stores the authenticated user id on the context. The HTTP
// middleware calls this after validating the session token.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// ContextProvider reads the identity the middleware stashed on the context.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) *string {
	userID, ok := ctx.Value(contextKey{}).(string)
	if !ok || userID == "" {
		return nil
	}
	return &userID
}
