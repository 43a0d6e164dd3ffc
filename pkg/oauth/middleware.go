package oauth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/registry"
)

// ProtectedResourceMetadataEndpoint is the RFC 9728 well-known path
// served alongside the MCP endpoint when OAuth is enabled.
const ProtectedResourceMetadataEndpoint = "/.well-known/oauth-protected-resource"

// Authenticator extracts and validates the bearer token on an inbound
// request. It is driven by the JSON-RPC engine rather than wrapping it as
// net/http middleware, because an authentication failure must be encoded
// as a JSON-RPC error carrying the request's own id, which only the
// engine knows once it has parsed the body.
//
// When OAuth is disabled every request authenticates as Anonymous and
// callers must treat all tools as unrestricted.
type Authenticator struct {
	enabled   bool
	validator *Validator
}

// NewAuthenticator builds an Authenticator for cfg. Token validation mode
// (JWT vs RFC 7662 introspection) is selected inside the Validator from
// cfg.OAuth.TokenValidation.
func NewAuthenticator(cfg *config.ServerConfig) *Authenticator {
	a := &Authenticator{}
	if cfg.OAuth != nil && cfg.OAuth.Enabled {
		a.enabled = true
		a.validator = NewValidator(cfg.OAuth)
	}
	return a
}

// Enabled reports whether bearer-token validation is active.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Authenticate validates the request's bearer token and returns the
// decoded claims. A missing or malformed Authorization header, or a token
// that fails validation, returns a non-nil *AuthError; the caller is
// responsible for writing the 401 response and the WWW-Authenticate
// challenge (see Challenge).
func (a *Authenticator) Authenticate(r *http.Request) (*Claims, *AuthError) {
	if !a.enabled {
		return Anonymous, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, authError(ReasonMissingToken, "Missing authorization token")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := a.validator.Validate(r.Context(), tokenString)
	if err != nil {
		if authErr, ok := err.(*AuthError); ok {
			return nil, authErr
		}
		return nil, authError(ReasonMalformedToken, "")
	}

	return claims, nil
}

// Challenge sets the WWW-Authenticate header on a 401 response, pointing
// the client at the RFC 9728 protected-resource metadata document. The
// scheme is taken from the connection, or X-Forwarded-Proto when the
// bridge sits behind a proxy.
func Challenge(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	fullWellKnownPath := fmt.Sprintf("%s://%s%s", scheme, r.Host, ProtectedResourceMetadataEndpoint)
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer resource_metadata=%q", fullWellKnownPath))
}

// ProtectedResourceMetadataHandler builds the RFC 9728 metadata handler
// for cfg, aggregating scopes_supported from every scope-claim
// requirement across reg's tools. Returns 404 when OAuth isn't
// configured.
func ProtectedResourceMetadataHandler(cfg *config.ServerConfig, reg *registry.Registry) http.HandlerFunc {
	if cfg.OAuth == nil || !cfg.OAuth.Enabled {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
	}

	scopes := aggregateScopes(reg)

	metadataConfig := MetadataConfig{
		ResourceName:         cfg.ServerName,
		AuthorizationServers: cfg.OAuth.AuthorizationServers,
		ScopesSupported:      scopes,
	}

	return NewProtectedResourceMetadataHandler(cfg.BasePath, metadataConfig)
}

func aggregateScopes(reg *registry.Registry) []string {
	if reg == nil {
		return nil
	}

	seen := make(map[string]bool)
	var scopes []string
	for _, tool := range reg.All() {
		for _, req := range tool.AccessRequirements {
			if req.ClaimName != "scope" {
				continue
			}
			for _, v := range req.ClaimValues {
				if !seen[v] {
					seen[v] = true
					scopes = append(scopes, v)
				}
			}
		}
	}
	return scopes
}
