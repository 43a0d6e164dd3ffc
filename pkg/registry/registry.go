package registry

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/access"
)

// ErrNotFound is returned by Lookup when no tool with the given name
// exists in the registry at all.
var ErrNotFound = errors.New("tool not found")

// ErrForbidden is returned by Lookup when a tool exists but the supplied
// claims don't satisfy its access requirements. Both NotFound and
// Forbidden surface identically to the caller (-32001) to avoid leaking
// which tools exist to an unauthorized caller.
var ErrForbidden = errors.New("tool forbidden")

// Registry is the immutable tool catalogue built from a ServerConfig's
// routes. A new Registry is built on every config load/reload and
// swapped in atomically by the caller; Registry itself never mutates
// after Build returns.
type Registry struct {
	tools map[string]ToolRecord
	order []string
}

// Build assembles a Registry from the supplied tool records, keeping the
// first record for any duplicate name and logging a diagnostic for every
// one dropped.
func Build(records []ToolRecord, logger *zap.Logger) *Registry {
	r := &Registry{tools: make(map[string]ToolRecord, len(records))}

	for _, rec := range records {
		if _, exists := r.tools[rec.Name]; exists {
			if logger != nil {
				logger.Warn("dropping duplicate tool name",
					zap.String("tool_name", rec.Name),
					zap.String("route_id", rec.RouteID),
				)
			}
			continue
		}
		r.tools[rec.Name] = rec
		r.order = append(r.order, rec.Name)
	}

	return r
}

// List returns every tool record visible to claims, in registration
// order. A nil claims map means the caller is unauthenticated or
// anonymous; tools whose access requirements are non-empty will then be
// filtered out.
func (r *Registry) List(claims access.ClaimSet) []ToolRecord {
	visible := make([]ToolRecord, 0, len(r.order))
	for _, name := range r.order {
		rec := r.tools[name]
		if access.Allow(claims, rec.AccessRequirements) {
			visible = append(visible, rec)
		}
	}
	return visible
}

// Lookup resolves a single tool by name, applying the same access filter
// as List. It distinguishes ErrNotFound from ErrForbidden for internal
// diagnostics, but the JSON-RPC layer maps both to the same -32001
// error so a forbidden tool's existence isn't leaked.
func (r *Registry) Lookup(name string, claims access.ClaimSet) (ToolRecord, error) {
	rec, ok := r.tools[name]
	if !ok {
		return ToolRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !access.Allow(claims, rec.AccessRequirements) {
		return ToolRecord{}, fmt.Errorf("%w: %s", ErrForbidden, name)
	}
	return rec, nil
}

// Len reports the total number of registered tools, irrespective of
// access requirements.
func (r *Registry) Len() int {
	return len(r.tools)
}

// All returns every tool record, unfiltered by access requirements. It
// exists for diagnostics and metadata endpoints (e.g. aggregating
// scopes_supported for RFC 9728) that must see restricted tools too,
// never for serving tools/list to a caller.
func (r *Registry) All() []ToolRecord {
	all := make([]ToolRecord, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.tools[name])
	}
	return all
}
