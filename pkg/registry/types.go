// Package registry holds the synthesised tool catalogue: the immutable,
// atomically-swappable map of tool name to ToolRecord that the JSON-RPC
// engine consults for tools/list and tools/call. The map is rebuilt
// wholesale on config change, never mutated in place.
package registry

import (
	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/schema"
)

// ToolInputSchema is the object schema attached to every tool. Its
// Required field is never omitted, even when empty, so that a tool with
// no required arguments still reports `"required": []` rather than
// dropping the key.
type ToolInputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]*schema.Schema `json:"properties"`
	Required   []string                  `json:"required"`
}

// ToolRecord is one entry in the tool registry: a synthesised MCP tool
// plus the upstream binding and access requirements needed to serve and
// authorize a call to it.
type ToolRecord struct {
	Name        string
	Description string
	InputSchema *ToolInputSchema

	HTTPMethod    string
	EndpointPath  string
	RouteID       string
	RouteName     string
	RouteBasePath string
	OperationID   string

	AccessRequirements []config.Requirement
}
