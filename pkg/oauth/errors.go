package oauth

import "fmt"

// Reason is a machine-readable classification of why token validation
// failed. It is safe to surface to callers and to logs; the token and
// decoded claims never are.
type Reason string

const (
	ReasonMissingToken       Reason = "missing_token"
	ReasonMalformedToken     Reason = "malformed_token"
	ReasonUnsupportedAlg     Reason = "unsupported_alg"
	ReasonJWKSUnreachable    Reason = "jwks_unreachable"
	ReasonUnknownKID         Reason = "unknown_kid"
	ReasonInvalidSignature   Reason = "invalid_signature"
	ReasonExpired            Reason = "expired"
	ReasonNotYetValid        Reason = "not_yet_valid"
	ReasonAudienceMismatch   Reason = "audience_mismatch"
	ReasonMissingScope       Reason = "missing_scope"
	ReasonInvalidIssuer      Reason = "invalid_issuer"
	ReasonIntrospectionFailed Reason = "introspection_failed"
	ReasonTokenInactive      Reason = "token_inactive"
)

// AuthError is returned by Validator.Validate on any failure. It
// carries only a machine-readable Reason and a short human-readable
// Detail, never the raw token or decoded claims, so logging an
// AuthError can never leak credential material. Signature failure in
// particular is treated as fatal with no additional debug logging of
// what the token claimed.
type AuthError struct {
	Reason Reason
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("auth failed: %s", e.Reason)
	}
	return fmt.Sprintf("auth failed: %s: %s", e.Reason, e.Detail)
}

func authError(reason Reason, detail string) *AuthError {
	return &AuthError{Reason: reason, Detail: detail}
}
