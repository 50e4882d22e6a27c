package core

import (
	"context"
	"fmt"
)

type claimsContextKey struct{}

// SetClaims returns a copy of ctx carrying the verified claims. Adapters
// call it once verification succeeds.
func SetClaims(ctx context.Context, claims any) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// GetClaims returns the claims stored by SetClaims as T.
//
//	claims, err := core.GetClaims[*verifier.Claims](ctx)
//
// It fails with ErrClaimsNotFound when nothing was stored, typically on a
// request let through with optional credentials, and with
// ErrClaimsTypeMismatch when the stored value is not a T.
func GetClaims[T any](ctx context.Context) (T, error) {
	var zero T

	stored := ctx.Value(claimsContextKey{})
	if stored == nil {
		return zero, ErrClaimsNotFound
	}

	claims, ok := stored.(T)
	if !ok {
		return zero, fmt.Errorf("%w: stored %T, requested %T", ErrClaimsTypeMismatch, stored, zero)
	}
	return claims, nil
}

// HasClaims reports whether verified claims are stored in ctx.
func HasClaims(ctx context.Context) bool {
	return ctx.Value(claimsContextKey{}) != nil
}
