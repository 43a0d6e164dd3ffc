package oauth

import (
	"context"
	"time"

	"github.com/kong-mcp/bridge/pkg/access"
)

// Claims is the decoded result of a successful token validation. Raw
// holds every claim the token carried (used by pkg/access to evaluate
// arbitrary claim_name requirements); the named fields are the handful
// of registered claims the validator itself inspects.
type Claims struct {
	Raw access.ClaimSet

	Subject   string
	Issuer    string
	Audience  []string
	Expiry    *time.Time
	IssuedAt  *time.Time
	NotBefore *time.Time
	Scope     string
	ClientID  string
}

// Anonymous is the sentinel result returned when OAuth is disabled: no
// claims, and callers must treat every tool as unrestricted. It is not
// nil so that downstream code can distinguish
// "validation never ran" from "validation ran and produced no claims".
var Anonymous = &Claims{Raw: access.ClaimSet{}}

type claimsContextKey struct{}

// GetClaimsFromContext returns the claims attached to ctx, if any.
func GetClaimsFromContext(ctx context.Context) *Claims {
	if v, ok := ctx.Value(claimsContextKey{}).(*Claims); ok {
		return v
	}
	return nil
}

// WithClaims returns a new context carrying claims, retrievable via
// GetClaimsFromContext.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}
