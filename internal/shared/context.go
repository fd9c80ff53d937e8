package shared

import "context"

// Claims carries the identity snapshot decoded from a bearer token.
type Claims struct {
	UserID       int64
	Name         string
	Email        string
	UserTypeID   int64
	UserTypeName string
	SessionID    string
	Permissions  []string
}

// HasPermission reports whether the token snapshot grants the permission.
func (c *Claims) HasPermission(name string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

type claimsContextKey struct{}

// ContextWithClaims stores the decoded token claims in context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the decoded token claims from context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}
