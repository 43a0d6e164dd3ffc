package config

import "fmt"

// MinAPISpecificationLength is the minimum length of an api_specification
// string: short enough to catch accidental truncation, long enough that
// a trivial placeholder never passes.
const MinAPISpecificationLength = 50

// Validate checks structural invariants of the ServerConfig that aren't
// enforced by the type system.
func (s *ServerConfig) Validate() error {
	if s.OAuth != nil {
		if err := s.OAuth.Validate(); err != nil {
			return fmt.Errorf("invalid oauth config: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(s.Routes))
	for i := range s.Routes {
		route := &s.Routes[i]
		if err := route.Validate(); err != nil {
			return fmt.Errorf("invalid route %q: %w", route.RouteID, err)
		}
		if _, dup := seen[route.RouteID]; dup {
			return fmt.Errorf("duplicate route_id %q", route.RouteID)
		}
		seen[route.RouteID] = struct{}{}
	}

	return nil
}

// Validate checks OAuthConfig invariants. An introspection mode without
// an endpoint is rejected at load time rather than silently falling
// back to JWT validation.
func (o *OAuthConfig) Validate() error {
	if !o.Enabled {
		return nil
	}

	switch o.TokenValidation {
	case TokenValidationJWT, "":
	case TokenValidationIntrospection:
		if o.IntrospectionEndpoint == "" {
			return fmt.Errorf("token_validation is %q but introspection_endpoint is not set", TokenValidationIntrospection)
		}
	default:
		return fmt.Errorf("unsupported token_validation %q", o.TokenValidation)
	}

	if len(o.AuthorizationServers) == 0 {
		return fmt.Errorf("oauth is enabled but no authorization_servers are configured")
	}

	return nil
}

// Validate checks RouteToolConfig invariants.
func (r *RouteToolConfig) Validate() error {
	if r.RouteID == "" {
		return fmt.Errorf("route_id is required")
	}
	if len(r.APISpecification) < MinAPISpecificationLength {
		return fmt.Errorf("api_specification must be at least %d characters, got %d", MinAPISpecificationLength, len(r.APISpecification))
	}
	if r.AccessControl != nil {
		for _, req := range r.AccessControl.DefaultRequirements {
			if err := req.Validate(); err != nil {
				return fmt.Errorf("invalid default_requirements entry: %w", err)
			}
		}
		for _, req := range r.AccessControl.PerOperationRequirement {
			if err := req.Validate(); err != nil {
				return fmt.Errorf("invalid per_operation_requirements entry: %w", err)
			}
			if req.OperationID == "" {
				return fmt.Errorf("per_operation_requirements entry must set operation_id")
			}
		}
	}
	return nil
}

// Validate checks Requirement invariants.
func (req *Requirement) Validate() error {
	if req.ClaimName == "" {
		return fmt.Errorf("claim_name is required")
	}
	switch req.MatchType {
	case MatchAny, MatchAll:
	default:
		return fmt.Errorf("match_type must be %q or %q, got %q", MatchAny, MatchAll, req.MatchType)
	}
	return nil
}
