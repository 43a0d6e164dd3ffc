package config

import "k8s.io/utils/ptr"

// Default values for server configuration.
const (
	DefaultServerName    = "kong-mcp"
	DefaultServerVersion = "1.0.0"
	DefaultMaxTools      = 1000
	DefaultBasePath      = "/mcp"

	DefaultJWKSCacheTTLSeconds     = 300
	DefaultJWKSFetchTimeoutSeconds = 5
	DefaultUpstreamTimeoutSeconds  = 10
	DefaultIntrospectionTTLSeconds = 30
)

// ApplyDefaults fills in zero-valued fields of ServerConfig with their
// documented defaults.
func (s *ServerConfig) ApplyDefaults() {
	if s.ServerName == "" {
		s.ServerName = DefaultServerName
	}
	if s.ServerVersion == "" {
		s.ServerVersion = DefaultServerVersion
	}
	if s.MaxTools <= 0 {
		s.MaxTools = DefaultMaxTools
	}
	if s.BasePath == "" {
		s.BasePath = DefaultBasePath
	}
	if s.OAuth != nil {
		s.OAuth.ApplyDefaults()
	}
	for i := range s.Routes {
		s.Routes[i].ApplyDefaults()
	}
}

// ApplyDefaults fills in zero-valued fields of OAuthConfig.
func (o *OAuthConfig) ApplyDefaults() {
	if o.TokenValidation == "" {
		o.TokenValidation = TokenValidationJWT
	}
}

// ApplyDefaults fills in zero-valued fields of RouteToolConfig.
func (r *RouteToolConfig) ApplyDefaults() {
	if r.Enabled == nil {
		r.Enabled = ptr.To(true)
	}
	if r.RouteName == "" {
		r.RouteName = r.RouteID
	}
}
