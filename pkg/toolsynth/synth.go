// Package toolsynth turns loaded OpenAPI operations into ToolRecords:
// deterministic tool names, human-readable descriptions, assembled input
// schemas, and resolved access requirements.
package toolsynth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/openapi"
	"github.com/kong-mcp/bridge/pkg/registry"
	"github.com/kong-mcp/bridge/pkg/schema"
)

var (
	nonPathSafe = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	nonNameSafe = regexp.MustCompile(`[^a-z0-9_-]+`)
	runsUnderscore = regexp.MustCompile(`_+`)
	runsSeparator  = regexp.MustCompile(`[_-]+`)
	braceParam     = regexp.MustCompile(`\{([^}]+)\}`)
)

// maxToolNameLength caps generated tool names; some MCP clients reject
// longer identifiers.
const maxToolNameLength = 128

var verbTable = map[string]string{
	"GET":     "Retrieve",
	"POST":    "Create",
	"PUT":     "Update",
	"PATCH":   "Partially update",
	"DELETE":  "Delete",
	"HEAD":    "Get headers for",
	"OPTIONS": "Get options for",
}

// Synthesize builds one ToolRecord per operation in doc, scoped to the
// given route. Duplicate names across the whole registry are resolved by
// the caller (pkg/registry), which applies first-writer-wins semantics.
func Synthesize(route config.RouteToolConfig, doc *openapi.Document) []registry.ToolRecord {
	records := make([]registry.ToolRecord, 0, len(doc.Operations()))

	for _, op := range doc.Operations() {
		records = append(records, synthesizeOne(route, op))
	}

	return records
}

func synthesizeOne(route config.RouteToolConfig, op openapi.Operation) registry.ToolRecord {
	name := toolName(route, op)
	description := toolDescription(op)
	inputSchema := buildInputSchema(op)
	requirements := resolveAccessRequirements(route, op)

	return registry.ToolRecord{
		Name:               name,
		Description:        description,
		InputSchema:        inputSchema,
		HTTPMethod:         op.Method,
		EndpointPath:       op.Path,
		RouteID:            route.RouteID,
		RouteName:          route.RouteName,
		RouteBasePath:      route.UpstreamBasePath,
		OperationID:        op.OperationID,
		AccessRequirements: requirements,
	}
}

// toolName derives the deterministic tool name: choose a prefix,
// simplify the path, compose and re-sanitize the result.
func toolName(route config.RouteToolConfig, op openapi.Operation) string {
	prefix := route.ToolPrefix
	if prefix == "" {
		prefix = route.RouteName
	}

	simplified := simplifyPath(op.Path)

	composed := fmt.Sprintf("%s_%s_%s", prefix, strings.ToLower(op.Method), simplified)
	composed = strings.ToLower(composed)
	composed = nonNameSafe.ReplaceAllString(composed, "_")
	composed = runsSeparator.ReplaceAllStringFunc(composed, func(run string) string {
		return run[:1]
	})
	composed = strings.Trim(composed, "_-")

	if len(composed) > maxToolNameLength {
		composed = strings.Trim(composed[:maxToolNameLength], "_-")
	}

	return composed
}

// simplifyPath drops the leading slash, turns remaining slashes and
// brace-wrapped parameter names into underscore-joined segments, and
// collapses the result down to [A-Za-z0-9_]+.
func simplifyPath(path string) string {
	p := strings.TrimPrefix(path, "/")
	p = strings.ReplaceAll(p, "/", "_")
	p = braceParam.ReplaceAllString(p, "$1")
	p = nonPathSafe.ReplaceAllString(p, "_")
	p = runsUnderscore.ReplaceAllString(p, "_")
	p = strings.Trim(p, "_")
	if p == "" {
		return "root"
	}
	return p
}

// toolDescription picks the first non-empty of summary, description, or
// a generated "{verb} {path}" sentence with {x} rewritten to "by x".
func toolDescription(op openapi.Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	if op.Description != "" {
		return op.Description
	}

	verb, ok := verbTable[op.Method]
	if !ok {
		verb = fmt.Sprintf("Execute %s on", op.Method)
	}

	pathWithBy := braceParam.ReplaceAllString(strings.TrimPrefix(op.Path, "/"), "by $1")
	return fmt.Sprintf("%s %s", verb, pathWithBy)
}

// buildInputSchema assembles the tool's object schema: one property per
// parameter plus a "body" entry, with "required" collecting required
// parameter names and "body" when applicable.
func buildInputSchema(op openapi.Operation) *registry.ToolInputSchema {
	props := make(map[string]*schema.Schema, len(op.Parameters)+1)
	required := make([]string, 0)

	for _, p := range op.Parameters {
		props[p.Name] = p.Schema
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if op.RequestBody != nil {
		props["body"] = op.RequestBody.Schema
		if op.RequestBody.Required {
			required = append(required, "body")
		}
	}

	return &registry.ToolInputSchema{
		Type:       schema.TypeObject,
		Properties: props,
		Required:   required,
	}
}

// resolveAccessRequirements starts from the route's default requirements
// and, if a per-operation override names this operation's ID, replaces
// them wholesale with that single-entry list.
func resolveAccessRequirements(route config.RouteToolConfig, op openapi.Operation) []config.Requirement {
	if route.AccessControl == nil {
		return nil
	}

	if op.OperationID != "" {
		for _, override := range route.AccessControl.PerOperationRequirement {
			if override.OperationID == op.OperationID {
				return []config.Requirement{override}
			}
		}
	}

	return route.AccessControl.DefaultRequirements
}
