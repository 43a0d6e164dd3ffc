package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/kong-mcp/bridge/pkg/access"
	"github.com/kong-mcp/bridge/pkg/config"
)

// rsaAlgs is the closed set of RSA-family JWS algorithms this validator
// accepts. Anything else is rejected before any key lookup happens.
var rsaAlgs = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"PS256": true, "PS384": true, "PS512": true,
}

// Validator implements bearer-token validation: JWKS resolution and
// caching, RSA signature verification, and the alg/exp/nbf/aud/scope
// claim checks.
type Validator struct {
	cfg   *config.OAuthConfig
	jwks  *JWKSCache
	httpc *http.Client

	introspection *IntrospectionClient
}

// NewValidator builds a Validator for the given OAuth configuration.
func NewValidator(cfg *config.OAuthConfig) *Validator {
	client := &http.Client{Timeout: 10 * time.Second}
	v := &Validator{
		cfg:   cfg,
		jwks:  NewJWKSCache(time.Duration(config.DefaultJWKSCacheTTLSeconds)*time.Second, client),
		httpc: client,
	}
	if cfg != nil && cfg.TokenValidation == config.TokenValidationIntrospection {
		v.introspection = NewIntrospectionClient(cfg, client)
	}
	return v
}

// Validate runs the full validation pipeline against tokenString. When
// OAuth is disabled it returns Anonymous with no error, and callers
// must treat every tool as unrestricted.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	if v.cfg == nil || !v.cfg.Enabled {
		return Anonymous, nil
	}

	if v.introspection != nil {
		return v.introspection.Validate(ctx, tokenString)
	}

	return v.validateJWT(ctx, tokenString)
}

func (v *Validator) validateJWT(ctx context.Context, tokenString string) (*Claims, error) {
	alg, kid, err := decodeHeader(tokenString)
	if err != nil {
		return nil, authError(ReasonMalformedToken, "")
	}
	if !rsaAlgs[alg] {
		return nil, authError(ReasonUnsupportedAlg, alg)
	}

	jwksURL, err := v.resolveJWKSURL(ctx)
	if err != nil {
		return nil, authError(ReasonJWKSUnreachable, err.Error())
	}

	keySet, err := v.jwks.Get(ctx, jwksURL)
	if err != nil {
		return nil, authError(ReasonJWKSUnreachable, err.Error())
	}

	if kid != "" {
		if _, ok := keySet.LookupKeyID(kid); !ok {
			keySet, err = v.jwks.ForceRefresh(ctx, jwksURL)
			if err != nil {
				return nil, authError(ReasonJWKSUnreachable, err.Error())
			}
			if _, ok := keySet.LookupKeyID(kid); !ok {
				return nil, authError(ReasonUnknownKID, kid)
			}
		}
	}

	// jwt.Parse verifies the signature against keySet and, by default,
	// rejects expired or not-yet-valid tokens. Signature failure is
	// fatal here with no logging of the token or its claims.
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keySet))
	if err != nil {
		return nil, classifyParseError(err)
	}

	if err := jwt.Validate(token); err != nil {
		return nil, classifyParseError(err)
	}

	claims := v.extractClaims(token)

	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}
	if err := v.checkScopes(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// resolveJWKSURL finds the JWKS document for the configured
// authorization servers: a URL that already references jwks is used
// directly, OIDC discovery is tried next, and common JWKS paths are
// probed last for servers that publish no discovery document.
func (v *Validator) resolveJWKSURL(ctx context.Context) (string, error) {
	var lastErr error
	for _, base := range v.cfg.AuthorizationServers {
		if strings.Contains(base, "jwks") {
			return base, nil
		}

		if uri, err := v.discoverFromOIDC(ctx, base); err == nil {
			return uri, nil
		} else {
			lastErr = err
		}

		if uri, err := v.discoverCommonPaths(ctx, base); err == nil {
			return uri, nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no authorization_servers configured")
	}
	return "", fmt.Errorf("failed to discover JWKS URI: %w", lastErr)
}

func (v *Validator) discoverFromOIDC(ctx context.Context, base string) (string, error) {
	discoveryURL := strings.TrimSuffix(base, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := v.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OIDC discovery returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to parse OIDC discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("OIDC discovery document has no jwks_uri")
	}

	return doc.JWKSURI, nil
}

func (v *Validator) discoverCommonPaths(ctx context.Context, base string) (string, error) {
	commonPaths := []string{"/jwks", "/.well-known/jwks.json", "/oauth/jwks", "/auth/jwks"}

	for _, path := range commonPaths {
		candidate := strings.TrimSuffix(base, "/") + path
		if v.isValidJWKSEndpoint(ctx, candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no JWKS endpoint found under common paths for %s", base)
}

func (v *Validator) isValidJWKSEndpoint(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := v.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	_, err = jwk.ParseReader(resp.Body)
	return err == nil
}

func (v *Validator) extractClaims(token jwt.Token) *Claims {
	raw := make(access.ClaimSet)
	for _, name := range token.Keys() {
		var value any
		if err := token.Get(name, &value); err == nil {
			raw[name] = value
		}
	}

	claims := &Claims{Raw: raw}

	if sub, ok := token.Subject(); ok {
		claims.Subject = sub
	}
	if iss, ok := token.Issuer(); ok {
		claims.Issuer = iss
	}
	if aud, ok := token.Audience(); ok {
		claims.Audience = aud
	}
	if exp, ok := token.Expiration(); ok && !exp.IsZero() {
		claims.Expiry = &exp
	}
	if iat, ok := token.IssuedAt(); ok && !iat.IsZero() {
		claims.IssuedAt = &iat
	}
	if nbf, ok := token.NotBefore(); ok && !nbf.IsZero() {
		claims.NotBefore = &nbf
	}
	var scope string
	if err := token.Get("scope", &scope); err == nil {
		claims.Scope = scope
	}
	var clientID string
	if err := token.Get("client_id", &clientID); err == nil {
		claims.ClientID = clientID
	}

	return claims
}

// checkAudience requires the configured audience to appear in the
// token's aud claim.
func (v *Validator) checkAudience(claims *Claims) error {
	if v.cfg.Audience == "" {
		return nil
	}
	for _, aud := range claims.Audience {
		if aud == v.cfg.Audience {
			return nil
		}
	}
	return authError(ReasonAudienceMismatch, v.cfg.Audience)
}

// checkScopes requires every configured scope to appear in the token's
// space-joined scope claim.
func (v *Validator) checkScopes(claims *Claims) error {
	if len(v.cfg.RequiredScopes) == 0 {
		return nil
	}

	have := make(map[string]bool)
	for _, s := range strings.Fields(claims.Scope) {
		have[s] = true
	}

	for _, required := range v.cfg.RequiredScopes {
		if !have[required] {
			return authError(ReasonMissingScope, required)
		}
	}
	return nil
}

// decodeHeader base64url-decodes the first segment of a compact JWT
// (header.payload.signature) and reads its "alg"/"kid" fields, without
// trusting or verifying anything else about the token yet.
func decodeHeader(tokenString string) (alg string, kid string, err error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("token is not a three-part compact JWT")
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", fmt.Errorf("invalid header encoding: %w", err)
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", "", fmt.Errorf("invalid header json: %w", err)
	}

	return header.Alg, header.Kid, nil
}

// classifyParseError maps a jwx parse/validation error onto a machine
// readable Reason without retaining the underlying error's formatted
// text, which could otherwise echo fragments of the token or claims.
func classifyParseError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "exp") || strings.Contains(msg, "expired"):
		return authError(ReasonExpired, "")
	case strings.Contains(msg, "nbf") || strings.Contains(msg, "not yet valid"):
		return authError(ReasonNotYetValid, "")
	default:
		return authError(ReasonInvalidSignature, "")
	}
}
