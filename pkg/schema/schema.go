// Package schema converts OpenAPI/Swagger schema fragments into the plain
// JSON-Schema shape used for MCP tool input schemas, preserving the
// constraint keywords (numeric/string/array bounds, enum, default,
// example) and the x-parameter-in / x-content-type binding markers the
// execution dispatcher reads.
package schema

import (
	"strings"

	highbase "github.com/pb33f/libopenapi/datamodel/high/base"
	v2high "github.com/pb33f/libopenapi/datamodel/high/v2"
	yaml "go.yaml.in/yaml/v4"
)

// Parameter-location markers used by the execution dispatcher to bind a
// tool-call argument onto the upstream HTTP request.
const (
	ParamInPath   = "path"
	ParamInQuery  = "query"
	ParamInHeader = "header"
	ParamInCookie = "cookie"
	ParamInBody   = "body"
)

// Type name constants, kept lower-case as OpenAPI/JSON-Schema mandate.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// Schema is a plain JSON-Schema fragment. Only the keywords this bridge
// actually needs to validate and describe tool arguments are represented;
// everything else in an OpenAPI schema is intentionally dropped.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Default              any                `json:"default,omitempty"`
	Example              any                `json:"example,omitempty"`
	Format               string             `json:"format,omitempty"`

	MinLength *int64   `json:"minLength,omitempty"`
	MaxLength *int64   `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	// Exclusive bounds are always emitted in the numeric JSON-Schema
	// form; the boolean OpenAPI 3.0 form is normalized during conversion.
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64 `json:"multipleOf,omitempty"`
	MinItems         *int64   `json:"minItems,omitempty"`
	MaxItems         *int64   `json:"maxItems,omitempty"`
	UniqueItems      bool     `json:"uniqueItems,omitempty"`

	// ParameterIn records where a bound argument belongs on the upstream
	// request: "path", "query", "header", "cookie", or "body" for the
	// single request-body entry. Never marshaled into a tool's public
	// inputSchema; it's read by pkg/dispatch only.
	ParameterIn string `json:"-"`
	// ContentType is set on the body entry when the operation accepts a
	// content type other than application/json (x-content-type marker).
	ContentType string `json:"-"`
}

// Convert turns an OpenAPI 3.x schema proxy into a Schema, breaking
// cycles with a visited-set keyed by proxy identity and emitting a
// shallow stand-in (type, description, additionalProperties, and an
// array's item type) on recursion instead of an infinite tree.
func Convert(proxy *highbase.SchemaProxy, visited map[*highbase.SchemaProxy]*Schema) *Schema {
	if proxy == nil {
		return nil
	}

	if s, ok := visited[proxy]; ok {
		stub := &Schema{
			Type:                 s.Type,
			Description:          s.Description,
			AdditionalProperties: s.AdditionalProperties,
		}
		if s.Type == TypeArray && s.Items != nil {
			stub.Items = &Schema{Type: s.Items.Type, Description: s.Items.Description}
		} else if s.Type == TypeObject {
			allow := true
			stub.AdditionalProperties = &allow
		}
		return stub
	}

	raw := proxy.Schema()
	if raw == nil {
		return &Schema{}
	}

	schemaType := ""
	if len(raw.Type) > 0 {
		schemaType = strings.ToLower(raw.Type[0])
	}

	s := &Schema{
		Type:        schemaType,
		Description: raw.Description,
		Format:      raw.Format,
		Pattern:     raw.Pattern,
		MinLength:   raw.MinLength,
		MaxLength:   raw.MaxLength,
		Minimum:     raw.Minimum,
		Maximum:     raw.Maximum,
		MultipleOf:  raw.MultipleOf,
		MinItems:    raw.MinItems,
		MaxItems:    raw.MaxItems,
	}
	if raw.UniqueItems != nil {
		s.UniqueItems = *raw.UniqueItems
	}
	applyExclusiveBounds(s, raw)
	if v, ok := decodeNode(raw.Default); ok {
		s.Default = v
	}
	for _, e := range raw.Enum {
		if v, ok := decodeNode(e); ok {
			s.Enum = append(s.Enum, v)
		}
	}
	if len(raw.Examples) > 0 {
		if v, ok := decodeNode(raw.Examples[0]); ok {
			s.Example = v
		}
	} else if v, ok := decodeNode(raw.Example); ok {
		s.Example = v
	}

	visited[proxy] = s

	switch schemaType {
	case TypeArray:
		if raw.Items != nil && raw.Items.IsA() {
			s.Items = Convert(raw.Items.A, visited)
		}
	case TypeObject:
		s.Properties = map[string]*Schema{}
		s.Required = []string{}
		if raw.Properties != nil {
			for k, v := range raw.Properties.FromOldest() {
				s.Properties[k] = Convert(v, visited)
			}
		}
		if len(raw.Required) > 0 {
			s.Required = append(s.Required, raw.Required...)
		}
	}

	if raw.AdditionalProperties != nil {
		if raw.AdditionalProperties.IsA() {
			allow := true
			s.AdditionalProperties = &allow
		} else if raw.AdditionalProperties.IsB() && raw.AdditionalProperties.B {
			allow := true
			s.AdditionalProperties = &allow
		}
	}

	return s
}

// applyExclusiveBounds normalizes the two OpenAPI encodings of exclusive
// numeric bounds onto the numeric JSON-Schema keywords: 3.1 carries the
// bound value directly, while 3.0 carries a boolean flag that marks the
// plain minimum/maximum as exclusive.
func applyExclusiveBounds(s *Schema, raw *highbase.Schema) {
	if raw.ExclusiveMinimum != nil {
		if raw.ExclusiveMinimum.IsB() {
			s.ExclusiveMinimum = &raw.ExclusiveMinimum.B
		} else if raw.ExclusiveMinimum.A && s.Minimum != nil {
			s.ExclusiveMinimum = s.Minimum
			s.Minimum = nil
		}
	}
	if raw.ExclusiveMaximum != nil {
		if raw.ExclusiveMaximum.IsB() {
			s.ExclusiveMaximum = &raw.ExclusiveMaximum.B
		} else if raw.ExclusiveMaximum.A && s.Maximum != nil {
			s.ExclusiveMaximum = s.Maximum
			s.Maximum = nil
		}
	}
}

// ConvertV2Parameter converts a Swagger 2.0 parameter, which may carry its
// type inline (query/path/header params) rather than through a schema
// proxy (body params only).
func ConvertV2Parameter(param *v2high.Parameter, visited map[*highbase.SchemaProxy]*Schema) *Schema {
	if param.Schema != nil {
		return Convert(param.Schema, visited)
	}

	s := &Schema{
		Type:        strings.ToLower(param.Type),
		Description: param.Description,
		Format:      param.Format,
	}
	if s.Type == TypeArray && param.Items != nil {
		s.Items = &Schema{Type: strings.ToLower(param.Items.Type)}
	}
	return s
}

// decodeNode decodes a *yaml.Node, which is how libopenapi's high-level
// model preserves default/enum/example values regardless of their
// source encoding, into a plain Go value suitable for encoding/json.
func decodeNode(n *yaml.Node) (any, bool) {
	if n == nil {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}
