package accounts

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var profileCtxKey = &contextKey{"profile"}
var claimsCtxKey = &contextKey{"claims"}
var scopeCtxKey = &contextKey{"scope"}

type contextKey struct {
	name string
}

// WithContext sets the Profile in the given context
func WithContext(r context.Context, profile *Profile) context.Context {
	return context.WithValue(r, profileCtxKey, profile)
}

// FromContext finds the profile from the context.
func FromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithScopeContext sets the session's subscription scope in the context
func WithScopeContext(r context.Context, scope *SessionScope) context.Context {
	return context.WithValue(r, scopeCtxKey, scope)
}

// ScopeFromContext finds the subscription scope from the context.
func ScopeFromContext(ctx context.Context) (*SessionScope, bool) {
	raw, ok := ctx.Value(scopeCtxKey).(*SessionScope)
	return raw, ok
}

// GetFiberClaims extracts the AuthClaims stashed in fiber locals by the
// session middleware.
func GetFiberClaims(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = "claims"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// IsAdminContext reports whether the context carries an admin-capable claim.
func IsAdminContext(ctx context.Context) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.IsAdmin()
}
