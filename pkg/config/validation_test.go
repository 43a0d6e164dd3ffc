package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAPISpec() string {
	return `{"openapi":"3.0.0","info":{"title":"t","version":"1"},"paths":{"/status":{"get":{"summary":"Get status"}}}}` + strings.Repeat(" ", 10)
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := &ServerConfig{
		Routes: []RouteToolConfig{
			{RouteID: "r1", APISpecification: validAPISpec()},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
}

func TestServerConfig_Validate_DuplicateRouteID(t *testing.T) {
	cfg := &ServerConfig{
		Routes: []RouteToolConfig{
			{RouteID: "r1", APISpecification: validAPISpec()},
			{RouteID: "r1", APISpecification: validAPISpec()},
		},
	}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate route_id")
}

func TestRouteToolConfig_Validate_ShortSpec(t *testing.T) {
	r := &RouteToolConfig{RouteID: "r1", APISpecification: "too short"}
	err := r.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api_specification")
}

func TestOAuthConfig_Validate_IntrospectionRequiresEndpoint(t *testing.T) {
	o := &OAuthConfig{
		Enabled:              true,
		AuthorizationServers: []string{"https://issuer.example.com"},
		TokenValidation:      TokenValidationIntrospection,
	}
	err := o.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "introspection_endpoint")

	o.IntrospectionEndpoint = "https://issuer.example.com/introspect"
	assert.NoError(t, o.Validate())
}

func TestOAuthConfig_Validate_UnsupportedMode(t *testing.T) {
	o := &OAuthConfig{
		Enabled:              true,
		AuthorizationServers: []string{"https://issuer.example.com"},
		TokenValidation:      "opaque",
	}
	err := o.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported token_validation")
}

func TestRequirement_Validate(t *testing.T) {
	req := &Requirement{ClaimName: "permissions", ClaimValues: []string{"a"}, MatchType: MatchAny}
	assert.NoError(t, req.Validate())

	bad := &Requirement{ClaimName: "permissions", MatchType: "sometimes"}
	assert.Error(t, bad.Validate())
}
