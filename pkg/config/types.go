// Package config holds the typed representation of the bridge's server
// settings and the per-route tool plugin settings that drive OpenAPI
// synthesis and access control.
package config

// TokenValidationMode selects how bearer tokens are verified.
type TokenValidationMode string

const (
	TokenValidationJWT           TokenValidationMode = "jwt"
	TokenValidationIntrospection TokenValidationMode = "introspection"
)

// OAuthConfig describes the OAuth 2.1 bearer-token validation settings for
// a server. When Enabled is false, every request is treated as anonymous
// and no tool is access-restricted.
type OAuthConfig struct {
	Enabled              bool                `json:"enabled" yaml:"enabled"`
	AuthorizationServers []string            `json:"authorization_servers,omitempty" yaml:"authorizationServers,omitempty"`
	Audience             string              `json:"audience,omitempty" yaml:"audience,omitempty"`
	RequiredScopes       []string            `json:"required_scopes,omitempty" yaml:"requiredScopes,omitempty"`
	ToolScopeFiltering   bool                `json:"tool_scope_filtering,omitempty" yaml:"toolScopeFiltering,omitempty"`
	TokenValidation      TokenValidationMode `json:"token_validation,omitempty" yaml:"tokenValidation,omitempty"`

	// IntrospectionEndpoint is required when TokenValidation is
	// TokenValidationIntrospection (RFC 7662).
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty" yaml:"introspectionEndpoint,omitempty"`
	IntrospectionClientID string `json:"introspection_client_id,omitempty" yaml:"introspectionClientId,omitempty"`
	IntrospectionSecret   string `json:"introspection_client_secret,omitempty" yaml:"introspectionClientSecret,omitempty"`
}

// ServerConfig is the top-level, immutable-for-the-lifetime-of-a-worker
// configuration for the bridge. A reload replaces the entire value
// atomically; there is no partial update.
type ServerConfig struct {
	ServerName    string       `json:"server_name,omitempty" yaml:"serverName,omitempty"`
	ServerVersion string       `json:"server_version,omitempty" yaml:"serverVersion,omitempty"`
	MaxTools      int          `json:"max_tools,omitempty" yaml:"maxTools,omitempty"`
	OAuth         *OAuthConfig `json:"oauth,omitempty" yaml:"oauth,omitempty"`

	// BasePath is the single HTTP path the bridge listens on (default "/mcp").
	BasePath string `json:"base_path,omitempty" yaml:"basePath,omitempty"`
	// ClientTLS configures outbound TLS for upstream calls made by the
	// execution dispatcher. Nil means the default client configuration.
	ClientTLS *ClientTLSConfig `json:"client_tls,omitempty" yaml:"clientTLS,omitempty"`

	Routes []RouteToolConfig `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// MatchType controls how a Requirement's claim values are combined against
// the caller's claim value.
type MatchType string

const (
	MatchAny MatchType = "any"
	MatchAll MatchType = "all"
)

// Requirement is a predicate over a ClaimSet: it names a claim, the values
// that must appear in it, and whether any or all of those values must be
// present.
type Requirement struct {
	ClaimName   string    `json:"claim_name" yaml:"claimName"`
	ClaimValues []string  `json:"claim_values" yaml:"claimValues"`
	MatchType   MatchType `json:"match_type" yaml:"matchType"`

	// OperationID, when set on entries of PerOperationRequirements, names
	// the OpenAPI operationId this entry overrides requirements for.
	OperationID string `json:"operation_id,omitempty" yaml:"operationId,omitempty"`
}

// AccessControl carries the default access requirements for all operations
// on a route plus per-operation overrides.
type AccessControl struct {
	DefaultRequirements     []Requirement `json:"default_requirements,omitempty" yaml:"defaultRequirements,omitempty"`
	PerOperationRequirement []Requirement `json:"per_operation_requirements,omitempty" yaml:"perOperationRequirements,omitempty"`
}

// RouteToolConfig binds one upstream route to an OpenAPI description and
// the access control that applies to the tools synthesised from it.
type RouteToolConfig struct {
	RouteID          string         `json:"route_id" yaml:"routeId"`
	RouteName        string         `json:"route_name" yaml:"routeName"`
	UpstreamBasePath string         `json:"upstream_base_path" yaml:"upstreamBasePath"`
	APISpecification string         `json:"api_specification" yaml:"apiSpecification"`
	ToolPrefix       string         `json:"tool_prefix,omitempty" yaml:"toolPrefix,omitempty"`
	Enabled          *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	AccessControl    *AccessControl `json:"access_control,omitempty" yaml:"accessControl,omitempty"`
}

// IsEnabled returns the effective enabled state, defaulting to true.
func (r *RouteToolConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ClientTLSConfig configures outbound TLS trust for calls the execution
// dispatcher makes to upstream routes.
type ClientTLSConfig struct {
	CACertFiles        []string `json:"ca_cert_files,omitempty" yaml:"caCertFiles,omitempty"`
	CACertDir          string   `json:"ca_cert_dir,omitempty" yaml:"caCertDir,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}
