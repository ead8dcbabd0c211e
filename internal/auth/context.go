/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

// claimsKey is unexported so only this package can set or read claims.
type claimsKey struct{}

// WithClaims returns ctx carrying the caller's verified claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims set by Middleware. ok is false on
// unauthenticated requests.
func ClaimsFromContext(ctx context.Context) (c *Claims, ok bool) {
	c, _ = ctx.Value(claimsKey{}).(*Claims)
	return c, c != nil
}
