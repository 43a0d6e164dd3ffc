package openapi

import (
	"strings"

	highbase "github.com/pb33f/libopenapi/datamodel/high/base"
	v2high "github.com/pb33f/libopenapi/datamodel/high/v2"
	v3high "github.com/pb33f/libopenapi/datamodel/high/v3"

	"github.com/kong-mcp/bridge/pkg/schema"
)

// newSchemaCache returns a fresh cycle-breaking cache scoped to a single
// operation.
func newSchemaCache() map[*highbase.SchemaProxy]*schema.Schema {
	return make(map[*highbase.SchemaProxy]*schema.Schema)
}

func convertV3Parameter(p *v3high.Parameter, cache map[*highbase.SchemaProxy]*schema.Schema) Parameter {
	s := schema.Convert(p.Schema, cache)
	if s == nil {
		s = &schema.Schema{Type: schema.TypeString}
	}
	s.ParameterIn = strings.ToLower(p.In)

	required := strings.ToLower(p.In) == schema.ParamInPath
	if p.Required != nil {
		required = required || *p.Required
	}

	return Parameter{
		Name:        p.Name,
		In:          strings.ToLower(p.In),
		Required:    required,
		Description: p.Description,
		Schema:      s,
	}
}

func convertV3RequestBody(body *v3high.RequestBody, cache map[*highbase.SchemaProxy]*schema.Schema) *RequestBody {
	if body.Content == nil {
		return nil
	}

	contentType, media := pickMediaType(body)
	if media == nil {
		return nil
	}

	s := schema.Convert(media.Schema, cache)
	if s == nil {
		s = &schema.Schema{Type: schema.TypeObject}
	}
	s.ParameterIn = schema.ParamInBody
	if contentType != "application/json" {
		s.ContentType = contentType
	}

	required := false
	if body.Required != nil {
		required = *body.Required
	}

	return &RequestBody{
		Required:    required,
		ContentType: contentType,
		Schema:      s,
	}
}

// pickMediaType selects the request body media type to convert, preferring
// application/json and its common structured variants over an arbitrary
// first entry, per the x-content-type fallback rule.
func pickMediaType(body *v3high.RequestBody) (string, *v3high.MediaType) {
	preferred := []string{"application/json", "application/vnd.api+json", "text/json"}
	for _, ct := range preferred {
		if m, ok := body.Content.Get(ct); ok {
			return ct, m
		}
	}
	for ct, m := range body.Content.FromOldest() {
		return ct, m
	}
	return "", nil
}

func convertV2Param(p *v2high.Parameter, cache map[*highbase.SchemaProxy]*schema.Schema) Parameter {
	s := schema.ConvertV2Parameter(p, cache)
	if s == nil {
		s = &schema.Schema{Type: schema.TypeString}
	}
	s.ParameterIn = strings.ToLower(p.In)

	required := strings.ToLower(p.In) == schema.ParamInPath
	if p.Required != nil {
		required = required || *p.Required
	}

	return Parameter{
		Name:        p.Name,
		In:          strings.ToLower(p.In),
		Required:    required,
		Description: p.Description,
		Schema:      s,
	}
}

// bodyParamSchema finds the Swagger 2.0 "in: body" parameter, if any,
// and converts its schema, reporting whether the parameter was marked
// required. Swagger 2.0 represents the request body as a parameter
// rather than a first-class RequestBody object.
func bodyParamSchema(params []*v2high.Parameter, cache map[*highbase.SchemaProxy]*schema.Schema) (*schema.Schema, bool) {
	for _, p := range params {
		if strings.ToLower(p.In) == schema.ParamInBody && p.Schema != nil {
			s := schema.Convert(p.Schema, cache)
			if s != nil {
				s.ParameterIn = schema.ParamInBody
			}
			required := p.Required != nil && *p.Required
			return s, required
		}
	}
	return nil, false
}
